package health

import (
	"context"
	"sync"
	"time"

	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"

	log "github.com/sirupsen/logrus"
)

// Prober prüft die Erreichbarkeit des Erkennungsdienstes
type Prober interface {
	Probe(ctx context.Context) bool
}

// Sink nimmt Zustandsübergänge entgegen; erfüllt wird es vom Router
type Sink interface {
	Post(event router.Event)
}

// Monitor sondiert den Erkennungsdienst periodisch und meldet
// Zustandsübergänge an den Router. Offline wird schnell sondiert,
// online gemächlich; pro Übergang entsteht genau ein Ereignis.
type Monitor struct {
	prober          Prober
	conn            *state.ConnectionState
	results         Sink
	offlineInterval time.Duration
	onlineInterval  time.Duration

	mu         sync.Mutex
	running    bool
	lastOnline bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewMonitor erstellt einen Monitor. Der Startzustand ist optimistisch
// online, damit der Kiosk ohne vorherige Sonde sofort sendet.
func NewMonitor(prober Prober, conn *state.ConnectionState, results Sink, offlineInterval, onlineInterval time.Duration) *Monitor {
	return &Monitor{
		prober:          prober,
		conn:            conn,
		results:         results,
		offlineInterval: offlineInterval,
		onlineInterval:  onlineInterval,
		lastOnline:      true,
	}
}

// Start startet die Sondierungsschleife
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.loop()
	log.Infof("Health monitor started (offline interval: %s, online interval: %s)", m.offlineInterval, m.onlineInterval)
	return nil
}

// Stop beendet die Sondierungsschleife und wartet auf deren Ende
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("Health monitor stopped")
}

// loop sondiert mit zustandsabhängigem Intervall. Der Timer wird nach
// jeder Sonde neu gestellt, weil das Intervall vom Ergebnis abhängt.
func (m *Monitor) loop() {
	defer m.wg.Done()

	timer := time.NewTimer(m.offlineInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.offlineInterval)
			next := m.Check(ctx)
			cancel()
			timer.Reset(next)
		}
	}
}

// Check führt genau eine Sonde aus, verbucht das Ergebnis im
// Verbindungszustand und meldet einen Übergang genau einmal. Der
// Rückgabewert ist das Intervall bis zur nächsten Sonde.
func (m *Monitor) Check(ctx context.Context) time.Duration {
	online := m.prober.Probe(ctx)

	if online {
		m.conn.MarkOnline()
	} else {
		m.conn.MarkOffline()
	}

	next := m.offlineInterval
	if online {
		next = m.onlineInterval
	}

	m.mu.Lock()
	transition := online != m.lastOnline
	m.lastOnline = online
	m.mu.Unlock()

	if transition {
		m.results.Post(router.HealthChanged{Online: online, NextProbe: next})
	}
	return next
}
