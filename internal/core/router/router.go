package router

import (
	"encoding/json"
	"sync"
	"time"

	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/i18n"
	"absensi-kiosk-go/internal/integrations/mqtt"
	"absensi-kiosk-go/internal/offline"
	"absensi-kiosk-go/internal/server/sse"
	"absensi-kiosk-go/internal/session"
	"absensi-kiosk-go/internal/storage"

	"gorm.io/datatypes"

	log "github.com/sirupsen/logrus"
)

// Event ist ein Ergebnis, das vom Router in fester Reihenfolge auf den
// gemeinsamen Zustand angewendet wird
type Event interface{ isRouterEvent() }

// RecognitionArrived trägt das Ergebnis eines Erkennungsaufrufs
type RecognitionArrived struct {
	Outcome *api.Outcome
}

// RecognitionFailed meldet einen synchron fehlgeschlagenen Aufruf
type RecognitionFailed struct {
	Detail string
}

// HealthChanged meldet einen Übergang des Verbindungszustands
type HealthChanged struct {
	Online    bool
	NextProbe time.Duration
}

// GreetingReady trägt die abgeschlossene Begrüßungs-Sitzung
type GreetingReady struct {
	Greeting session.Greeting
}

// StatsReset setzt die Tageszähler zurück
type StatsReset struct{}

func (RecognitionArrived) isRouterEvent() {}
func (RecognitionFailed) isRouterEvent()  {}
func (HealthChanged) isRouterEvent()      {}
func (GreetingReady) isRouterEvent()      {}
func (StatsReset) isRouterEvent()         {}

// Speaker gibt Ansagen aus; ein nil-Speaker ist stumm
type Speaker interface {
	SpeakOnce(key, text string)
}

// Router serialisiert alle asynchron eintreffenden Ergebnisse auf einen
// einzigen Konsumenten. Erkennungsantworten, Gesundheitsübergänge und
// Sitzungs-Ansagen mutieren den UI-Zustand dadurch in Ankunftsreihenfolge
// und ohne Wettläufe untereinander.
type Router struct {
	events chan Event

	mu        sync.Mutex
	lastFaces []models.FaceObservation
	stats     models.Stats

	deviceID   string
	repo       *storage.Repository
	hub        *sse.Hub
	publisher  *mqtt.Publisher
	aggregator *session.Aggregator
	speaker    Speaker
	translator *i18n.Translator
	queue      *offline.Queue
}

// New erstellt einen Router. repo, publisher, speaker und queue dürfen nil sein.
func New(deviceID string, repo *storage.Repository, hub *sse.Hub, publisher *mqtt.Publisher, aggregator *session.Aggregator, speaker Speaker, translator *i18n.Translator, queue *offline.Queue) *Router {
	return &Router{
		events:     make(chan Event, 100),
		deviceID:   deviceID,
		repo:       repo,
		hub:        hub,
		publisher:  publisher,
		aggregator: aggregator,
		speaker:    speaker,
		translator: translator,
		queue:      queue,
	}
}

// Post reiht ein Ereignis ein. Der Aufruf blockiert nie; bei vollem
// Puffer wird das Ereignis verworfen und geloggt.
func (r *Router) Post(event Event) {
	select {
	case r.events <- event:
	default:
		log.Warnf("Result router buffer full, dropping %T", event)
	}
}

// Drain wendet alle derzeit eingereihten Ereignisse in Ankunftsreihenfolge
// an. Eine Panik in einem einzelnen Ereignis wird abgefangen, damit die
// restliche Queue weiterläuft.
func (r *Router) Drain() {
	for {
		select {
		case event := <-r.events:
			r.apply(event)
		default:
			return
		}
	}
}

func (r *Router) apply(event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Panic while applying %T: %v", event, rec)
		}
	}()

	switch e := event.(type) {
	case RecognitionArrived:
		r.applyRecognition(e.Outcome)
	case RecognitionFailed:
		log.Errorf("Recognition call failed: %s", e.Detail)
	case HealthChanged:
		r.applyHealthChange(e)
	case GreetingReady:
		r.applyGreeting(e.Greeting)
	case StatsReset:
		r.applyStatsReset()
	default:
		log.Warnf("Result router received unknown event %T", event)
	}
}

// applyRecognition verarbeitet genau ein Erkennungsergebnis: Overlays
// ersetzen, Zähler fortschreiben, Verlauf persistieren und die Gesichter
// an die Begrüßungs-Sitzung weiterreichen
func (r *Router) applyRecognition(outcome *api.Outcome) {
	if outcome == nil {
		return
	}

	switch outcome.Kind {
	case api.OutcomeServerError:
		log.Warnf("Recognition rejected by service (HTTP %d): %s", outcome.StatusCode, outcome.Detail)
		r.setFaces(nil)
		r.hub.BroadcastLabels(nil)
		return

	case api.OutcomeOfflineQueued:
		r.setFaces(nil)
		r.hub.BroadcastLabels(nil)
		if r.speaker != nil && outcome.CombinedAudio != "" {
			r.speaker.SpeakOnce("offline_queued", outcome.CombinedAudio)
		}
		return
	}

	now := time.Now()
	r.setFaces(outcome.Faces)
	r.hub.BroadcastLabels(outcome.Faces)

	for _, face := range outcome.Faces {
		r.updateStats(face)
		r.persistFace(face, outcome, now)
		r.publishFace(face, now)
		if face.Status == models.FaceStatusOK || face.Status == models.FaceStatusUnknown {
			r.hub.BroadcastActivity(sse.ActivityData{
				Time:      now.Format("15:04:05"),
				Name:      face.Name,
				Status:    face.Status,
				EventType: face.EventType,
				Late:      face.Late,
			})
		}
		r.aggregator.Observe(face, now)
	}
	r.hub.BroadcastStats(r.Stats())
}

func (r *Router) applyHealthChange(e HealthChanged) {
	message := ""
	if !e.Online && r.translator != nil {
		message = r.translator.T(i18n.MsgOfflineQueued, nil)
	}
	queueCount := 0
	if r.queue != nil {
		queueCount = r.queue.Count()
	}
	r.hub.BroadcastConnection(e.Online, queueCount, int(e.NextProbe.Seconds()), message)
	r.publisher.PublishConnectionState(e.Online)
	if e.Online {
		log.Info("Recognition service is reachable again")
	} else {
		log.Warn("Recognition service is unreachable, entering offline mode")
	}
}

// applyGreeting gibt die kombinierte Ansage genau einmal aus
func (r *Router) applyGreeting(greeting session.Greeting) {
	r.hub.BroadcastGreeting(greeting.Names, greeting.Text, greeting.Farewell, greeting.Late)
	if r.speaker != nil && greeting.Text != "" {
		r.speaker.SpeakOnce("greeting:"+greeting.Text, greeting.Text)
	}
}

func (r *Router) applyStatsReset() {
	r.mu.Lock()
	r.stats = models.Stats{}
	r.mu.Unlock()
	r.hub.BroadcastStats(models.Stats{})
	log.Info("Daily statistics reset")
}

func (r *Router) updateStats(face models.FaceObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case face.Status == models.FaceStatusOK && face.EventType == models.EventTypeIn:
		r.stats.CheckIn++
		if face.Late {
			r.stats.Late++
		}
	case face.Status == models.FaceStatusOK && face.EventType == models.EventTypeOut:
		r.stats.CheckOut++
	case face.Status == models.FaceStatusUnknown:
		r.stats.Unknown++
	}
}

func (r *Router) persistFace(face models.FaceObservation, outcome *api.Outcome, now time.Time) {
	if r.repo == nil {
		return
	}
	if face.Status != models.FaceStatusOK && face.Status != models.FaceStatusUnknown {
		return
	}

	raw, err := json.Marshal(outcome.Faces)
	if err != nil {
		raw = nil
	}
	event := &models.AttendanceEvent{
		Name:       face.Name,
		Status:     string(face.Status),
		EventType:  face.EventType,
		Late:       face.Late,
		Message:    outcome.CombinedAudio,
		RawFaces:   datatypes.JSON(raw),
		ObservedAt: now,
	}
	if err := r.repo.SaveEvent(event); err != nil {
		log.Errorf("Failed to persist attendance event: %v", err)
	}
}

func (r *Router) publishFace(face models.FaceObservation, now time.Time) {
	if face.Status != models.FaceStatusOK {
		return
	}
	r.publisher.PublishEvent(mqtt.EventPayload{
		Name:      face.Name,
		Status:    string(face.Status),
		EventType: face.EventType,
		Late:      face.Late,
		DeviceID:  r.deviceID,
		Timestamp: now,
	})
}

func (r *Router) setFaces(faces []models.FaceObservation) {
	r.mu.Lock()
	r.lastFaces = faces
	r.mu.Unlock()
}

// LastFaces liefert die Overlays des zuletzt verarbeiteten Frames
func (r *Router) LastFaces() []models.FaceObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	faces := make([]models.FaceObservation, len(r.lastFaces))
	copy(faces, r.lastFaces)
	return faces
}

// Stats liefert eine Kopie der Tageszähler
func (r *Router) Stats() models.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
