package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/offline"

	log "github.com/sirupsen/logrus"
)

// Timeout für lang laufende Admin-Operationen (Enroll, Rebuild)
const longOperationTimeout = 120 * time.Second

// Client kapselt alle Aufrufe gegen den entfernten Erkennungs- und
// Admin-Dienst. Transportfehler auf dem Erkennungspfad werden nie als
// Fehler gemeldet, sondern in die Offline-Warteschlange umgeleitet.
type Client struct {
	cfg         config.APIConfig
	httpClient  *http.Client
	longClient  *http.Client
	probeClient *http.Client
	queue       *offline.Queue
	conn        *state.ConnectionState
	flushCh     chan struct{}

	mu         sync.Mutex
	adminToken string
}

// recognizeResponse ist das JSON-Format von POST /v1/recognize_multi
type recognizeResponse struct {
	Faces           []faceEntry `json:"faces"`
	RecognizedNames []string    `json:"recognized_names"`
	CombinedAudio   string      `json:"combined_audio"`
}

type faceEntry struct {
	QueueID   int              `json:"queue_id"`
	Name      string           `json:"name,omitempty"`
	Status    string           `json:"status"`
	EventType string           `json:"event_type,omitempty"`
	Late      bool             `json:"late,omitempty"`
	Box       *json.RawMessage `json:"box,omitempty"`
}

// errorResponse ist das JSON-Format der Fehlermeldungen des Dienstes
type errorResponse struct {
	Detail string `json:"detail"`
}

// NewClient erstellt einen neuen API-Client
func NewClient(cfg config.APIConfig, queue *offline.Queue, conn *state.ConnectionState, probeTimeout time.Duration) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: timeout},
		longClient:  &http.Client{Timeout: longOperationTimeout},
		probeClient: &http.Client{Timeout: probeTimeout},
		queue:       queue,
		conn:        conn,
		flushCh:     make(chan struct{}, 1),
	}
}

// FlushSignal liefert den Kanal, über den der Client nach erfolgreichen
// Live-Aufrufen einen Warteschlangen-Abgleich anregt (nur ein Signal,
// keine garantierte Abarbeitung).
func (c *Client) FlushSignal() <-chan struct{} {
	return c.flushCh
}

func (c *Client) signalFlush() {
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

// Recognize sendet ein Bild zur Multi-Gesichtserkennung. Leere Eingaben
// sind ein Vertragsbruch des Aufrufers und werden synchron abgelehnt.
// HTTP >= 400 ergibt ServerError (nie eingereiht); Verbindungsfehler oder
// Timeout reihen die Anfrage ein und liefern OfflineQueued mit leerer
// Gesichtsliste, damit die Aufnahmeschleife weiterlaufen kann.
func (c *Client) Recognize(ctx context.Context, imageData []byte) (*Outcome, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	log.Debugf("Sending multi-face request: %d bytes", len(imageData))

	resp, err := c.postFrame(ctx, c.httpClient, imageData, "frame.jpg")
	if err != nil {
		// Dienst unerreichbar: einreihen statt Fehler melden
		log.Warnf("Offline detected, queuing request: %v", err)
		c.conn.MarkOffline()
		c.queue.Enqueue(imageData)
		return &Outcome{
			Kind:          OutcomeOfflineQueued,
			Faces:         nil,
			CombinedAudio: "Sistem sedang offline. Data disimpan dan akan dikirim nanti.",
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		detail := parseErrorDetail(bodyBytes)
		log.Warnf("Recognition rejected (status %d): %s", resp.StatusCode, detail)
		return &Outcome{
			Kind:       OutcomeServerError,
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}, nil
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &Outcome{
			Kind:       OutcomeServerError,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("undecodable response: %v", err),
		}, nil
	}

	log.Debugf("Multi-face response: %d faces", len(result.Faces))

	// Jeder erfolgreiche Live-Aufruf ist zugleich ein Gesundheitssignal
	c.conn.MarkOnline()
	c.signalFlush()

	return &Outcome{
		Kind:            OutcomeRecognized,
		Faces:           convertFaces(result.Faces),
		RecognizedNames: result.RecognizedNames,
		CombinedAudio:   result.CombinedAudio,
	}, nil
}

// SendQueued verschickt einen Eintrag der Offline-Warteschlange erneut.
// Anders als Recognize reiht dieser Pfad bei Fehlern nichts ein: der
// Eintrag liegt bereits auf der Platte und bleibt dort liegen.
func (c *Client) SendQueued(imageData []byte) error {
	resp, err := c.postFrame(context.Background(), c.httpClient, imageData, "queued_frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to send queued frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, parseErrorDetail(bodyBytes))
	}

	io.Copy(io.Discard, resp.Body)
	c.conn.MarkOnline()
	return nil
}

// Probe führt eine leichte Erreichbarkeitsprüfung gegen /health aus,
// unabhängig vom Erkennungspfad und mit eigenem, kurzem Timeout.
func (c *Client) Probe(ctx context.Context) bool {
	apiURL, err := url.JoinPath(c.cfg.BaseURL, "/health")
	if err != nil {
		log.Errorf("Failed to create health URL: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		log.Debugf("Health probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// postFrame baut den Multipart-Upload und schickt ihn an /v1/recognize_multi
func (c *Client) postFrame(ctx context.Context, client *http.Client, imageData []byte, filename string) (*http.Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	apiURL, err := url.JoinPath(c.cfg.BaseURL, "/v1/recognize_multi")
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Device-Id", c.cfg.DeviceID)
	req.Header.Set("X-Device-Token", c.cfg.DeviceToken)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	log.Debugf("Recognition request took %s", time.Since(start))

	return resp, nil
}

func convertFaces(entries []faceEntry) []models.FaceObservation {
	faces := make([]models.FaceObservation, 0, len(entries))
	for _, e := range entries {
		face := models.FaceObservation{
			QueueID:   e.QueueID,
			Name:      e.Name,
			Status:    models.FaceStatus(e.Status),
			EventType: e.EventType,
			Late:      e.Late,
		}
		if e.Box != nil {
			var box models.BoundingBox
			if err := json.Unmarshal(*e.Box, &box); err == nil {
				face.Box = &box
			}
		}
		faces = append(faces, face)
	}
	return faces
}

func parseErrorDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != "" {
		return er.Detail
	}
	return strings.TrimSpace(string(body))
}
