package sse

import (
	"encoding/json"
	"sync"

	"absensi-kiosk-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan []byte

	// Registrierungsanfragen von Clients
	register chan Client

	// Abmeldeanfragen von Clients
	unregister chan Client

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex
}

// Event ist der Rahmen jeder SSE-Nachricht an das Kiosk-UI
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LabelData beschreibt die Gesichts-Overlays des zuletzt verarbeiteten Frames
type LabelData struct {
	Faces []LabelFace `json:"faces"`
}

// LabelFace ist ein einzelnes Overlay mit Anzeigefarbe
type LabelFace struct {
	QueueID int                 `json:"queue_id"`
	Name    string              `json:"name,omitempty"`
	Status  models.FaceStatus   `json:"status"`
	Color   string              `json:"color"`
	Box     *models.BoundingBox `json:"box,omitempty"`
}

// GreetingData ist die abgeschlossene Begrüßungs-Sitzung für das UI
type GreetingData struct {
	Names    []string `json:"names"`
	Text     string   `json:"text"`
	Farewell bool     `json:"farewell"`
	Late     bool     `json:"late"`
}

// ActivityData ist ein neuer Eintrag des Aktivitätsverlaufs
type ActivityData struct {
	Time      string            `json:"time"`
	Name      string            `json:"name,omitempty"`
	Status    models.FaceStatus `json:"status"`
	EventType string            `json:"event_type,omitempty"`
	Late      bool              `json:"late"`
}

// ConnectionData meldet den Verbindungszustand zum Erkennungsdienst
type ConnectionData struct {
	Online       bool   `json:"online"`
	QueueCount   int    `json:"queue_count"`
	NextProbeSec int    `json:"next_probe_sec"`
	Message      string `json:"message,omitempty"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run startet die Verarbeitungsschleife des Hubs
// Dies sollte in einer separaten Goroutine ausgeführt werden
func (h *Hub) Run() {
	log.Info("SSE Hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				clientCount := len(h.clients)
				log.Infof("SSE client unregistered. Total clients: %d", clientCount)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))

			for client := range h.clients {
				select {
				case client <- message:
					// Nachricht erfolgreich gesendet
				default:
					// Client-Kanal ist voll oder geschlossen
					log.Warn("SSE client channel full or closed, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(message []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- message:
		// Nachricht erfolgreich zum Senden in die Queue gestellt
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// broadcastEvent serialisiert ein typisiertes Ereignis und verschickt es
func (h *Hub) broadcastEvent(eventType string, data interface{}) {
	jsonData, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Errorf("Failed to marshal SSE event '%s': %v", eventType, err)
		return
	}
	h.Broadcast(jsonData)
}

// BroadcastLabels sendet die Gesichts-Overlays eines Erkennungsergebnisses
func (h *Hub) BroadcastLabels(faces []models.FaceObservation) {
	labelFaces := make([]LabelFace, 0, len(faces))
	for _, face := range faces {
		labelFaces = append(labelFaces, LabelFace{
			QueueID: face.QueueID,
			Name:    face.Name,
			Status:  face.Status,
			Color:   models.LabelColor(face.Status),
			Box:     face.Box,
		})
	}
	h.broadcastEvent("labels", LabelData{Faces: labelFaces})
}

// BroadcastGreeting sendet die kombinierte Ansage einer Sitzung
func (h *Hub) BroadcastGreeting(names []string, text string, farewell, late bool) {
	h.broadcastEvent("greeting", GreetingData{
		Names:    names,
		Text:     text,
		Farewell: farewell,
		Late:     late,
	})
}

// BroadcastActivity sendet einen neuen Verlaufseintrag
func (h *Hub) BroadcastActivity(entry ActivityData) {
	h.broadcastEvent("activity", entry)
}

// BroadcastConnection sendet den Verbindungszustand zum Erkennungsdienst
func (h *Hub) BroadcastConnection(online bool, queueCount, nextProbeSec int, message string) {
	h.broadcastEvent("connection", ConnectionData{
		Online:       online,
		QueueCount:   queueCount,
		NextProbeSec: nextProbeSec,
		Message:      message,
	})
}

// BroadcastStats sendet die aktuellen Tageszähler
func (h *Hub) BroadcastStats(stats models.Stats) {
	h.broadcastEvent("stats", stats)
}
