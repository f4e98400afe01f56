package pipeline

import (
	"context"
	"sync"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/camera"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/offline"
	"absensi-kiosk-go/internal/session"

	log "github.com/sirupsen/logrus"
)

// Pipeline ist die Hauptschleife des Kiosks. Sie nimmt Frames von der
// Kamera, schickt höchstens eine Erkennungsanfrage gleichzeitig auf die
// Reise, leert die Router-Queue, prüft das Ruhefenster der
// Begrüßungs-Sitzung und stößt das Nachsenden der Offline-Queue an.
type Pipeline struct {
	source     camera.FrameSource
	client     *api.Client
	gate       *state.Gate
	queue      *offline.Queue
	aggregator *session.Aggregator
	results    *router.Router

	captureInterval time.Duration
	drainInterval   time.Duration
	quietInterval   time.Duration
	replayInterval  time.Duration

	mu       sync.Mutex
	scanning bool
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New erstellt die Pipeline. source darf nil sein, dann ruht die
// Erfassung bis eine Quelle nachgerüstet wird.
func New(cfg *config.Config, source camera.FrameSource, client *api.Client, gate *state.Gate, queue *offline.Queue, aggregator *session.Aggregator, results *router.Router) *Pipeline {
	maxFPS := cfg.Capture.MaxFPS
	if maxFPS <= 0 {
		maxFPS = 10
	}
	quietInterval := time.Duration(cfg.Greeting.CheckIntervalMillis) * time.Millisecond
	if quietInterval <= 0 {
		quietInterval = 500 * time.Millisecond
	}
	replayInterval := time.Duration(cfg.Queue.ReplayIntervalSeconds) * time.Second
	if replayInterval <= 0 {
		replayInterval = time.Minute
	}

	return &Pipeline{
		source:          source,
		client:          client,
		gate:            gate,
		queue:           queue,
		aggregator:      aggregator,
		results:         results,
		captureInterval: time.Second / time.Duration(maxFPS),
		drainInterval:   100 * time.Millisecond,
		quietInterval:   quietInterval,
		replayInterval:  replayInterval,
		scanning:        cfg.Capture.ScanOnStart,
	}
}

// SetScanning schaltet den Erfassungsmodus
func (p *Pipeline) SetScanning(enabled bool) {
	p.mu.Lock()
	p.scanning = enabled
	p.mu.Unlock()
}

// Scanning liefert den aktuellen Erfassungsmodus
func (p *Pipeline) Scanning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanning
}

// Start startet die Hauptschleife
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.loop()
	log.Infof("Pipeline started (capture every %s, scanning=%t)", p.captureInterval, p.scanning)
	return nil
}

// Stop beendet die Hauptschleife und wartet auf deren Ende
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	// Restliche Ergebnisse noch anwenden, damit nichts verloren geht
	p.results.Drain()
	log.Info("Pipeline stopped")
}

func (p *Pipeline) loop() {
	defer p.wg.Done()

	captureTicker := time.NewTicker(p.captureInterval)
	drainTicker := time.NewTicker(p.drainInterval)
	quietTicker := time.NewTicker(p.quietInterval)
	replayTicker := time.NewTicker(p.replayInterval)
	defer captureTicker.Stop()
	defer drainTicker.Stop()
	defer quietTicker.Stop()
	defer replayTicker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-captureTicker.C:
			p.captureTick(time.Now())
		case <-drainTicker.C:
			p.results.Drain()
		case <-quietTicker.C:
			p.quietTick(time.Now())
		case <-replayTicker.C:
			p.replayTick()
		case <-p.client.FlushSignal():
			// Ein Erfolg auf dem Hauptpfad ist der früheste Hinweis,
			// dass der Dienst wieder erreichbar ist
			p.replayTick()
		}
	}
}

// captureTick holt einen Frame und startet höchstens eine Erkennung.
// Das Gate stellt sicher, dass nie mehr als eine Anfrage unterwegs ist
// und der Mindestabstand zwischen Anfragen eingehalten wird.
func (p *Pipeline) captureTick(now time.Time) {
	if p.source == nil || !p.Scanning() {
		return
	}

	capture, err := p.source.Capture()
	if err != nil {
		log.Debugf("Frame capture failed: %v", err)
		return
	}
	if len(capture.Faces) == 0 {
		return
	}

	if !p.gate.TryAcquire(now) {
		return
	}

	frame := capture.FrameJPEG
	go func() {
		defer p.gate.Release()

		outcome, err := p.client.Recognize(context.Background(), frame)
		if err != nil {
			p.results.Post(router.RecognitionFailed{Detail: err.Error()})
			return
		}
		p.results.Post(router.RecognitionArrived{Outcome: outcome})
	}()
}

// quietTick prüft das Ruhefenster der Begrüßungs-Sitzung
func (p *Pipeline) quietTick(now time.Time) {
	greeting, fired := p.aggregator.CheckQuiet(now)
	if !fired {
		return
	}
	p.results.Post(router.GreetingReady{Greeting: *greeting})
}

// replayTick stößt das Nachsenden der Offline-Queue an. ReplayAll ist
// selbst gegen parallele Läufe geschützt.
func (p *Pipeline) replayTick() {
	if p.queue.Count() == 0 {
		return
	}
	go func() {
		if sent := p.queue.ReplayAll(p.client); sent > 0 {
			log.Infof("Replayed %d queued request(s)", sent)
		}
	}()
}
