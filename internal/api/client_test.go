package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/offline"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *offline.Queue, *state.ConnectionState) {
	t.Helper()
	queue := offline.NewQueue(filepath.Join(t.TempDir(), "queue"))
	conn := state.NewConnectionState()
	cfg := config.APIConfig{
		BaseURL:        baseURL,
		DeviceID:       "stb-test",
		DeviceToken:    "secret",
		TimeoutSeconds: 2,
	}
	return NewClient(cfg, queue, conn, time.Second), queue, conn
}

func TestRecognizeEmptyInputRejected(t *testing.T) {
	client, _, _ := newTestClient(t, "http://localhost:1")
	if _, err := client.Recognize(context.Background(), nil); err == nil {
		t.Fatal("empty image data must be rejected synchronously")
	}
}

func TestRecognizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recognize_multi" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Device-Id") != "stb-test" {
			t.Errorf("missing device header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"faces": [
				{"queue_id": 1, "name": "Alice", "status": "ok", "event_type": "IN", "box": {"x_min":1,"y_min":2,"x_max":3,"y_max":4}},
				{"queue_id": 2, "status": "unknown"}
			],
			"recognized_names": ["Alice"],
			"combined_audio": "Selamat datang, Alice!"
		}`))
	}))
	defer srv.Close()

	client, queue, conn := newTestClient(t, srv.URL)
	conn.MarkOffline()

	outcome, err := client.Recognize(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if outcome.Kind != OutcomeRecognized {
		t.Fatalf("Kind = %v, want Recognized", outcome.Kind)
	}
	if len(outcome.Faces) != 2 {
		t.Fatalf("faces = %d, want 2", len(outcome.Faces))
	}
	if outcome.Faces[0].Name != "Alice" || outcome.Faces[0].Status != models.FaceStatusOK {
		t.Errorf("unexpected first face: %+v", outcome.Faces[0])
	}
	if outcome.Faces[0].Box == nil || outcome.Faces[0].Box.XMax != 3 {
		t.Errorf("bounding box not decoded: %+v", outcome.Faces[0].Box)
	}

	// Erfolg ist ein implizites Gesundheitssignal
	if !conn.Online() {
		t.Error("successful call should mark connection online")
	}
	select {
	case <-client.FlushSignal():
	default:
		t.Error("successful call should signal a queue flush check")
	}
	if queue.Count() != 0 {
		t.Error("successful call must not enqueue anything")
	}
}

func TestRecognizeServerErrorNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "no face found"}`))
	}))
	defer srv.Close()

	client, queue, _ := newTestClient(t, srv.URL)

	outcome, err := client.Recognize(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if outcome.Kind != OutcomeServerError {
		t.Fatalf("Kind = %v, want ServerError", outcome.Kind)
	}
	if outcome.StatusCode != http.StatusUnprocessableEntity || outcome.Detail != "no face found" {
		t.Errorf("unexpected error outcome: %+v", outcome)
	}
	if queue.Count() != 0 {
		t.Error("application rejections must never be queued")
	}
}

func TestRecognizeUnreachableQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Verbindung schlägt garantiert fehl

	client, queue, conn := newTestClient(t, srv.URL)

	outcome, err := client.Recognize(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("transport failures must not surface as errors, got %v", err)
	}
	if outcome.Kind != OutcomeOfflineQueued {
		t.Fatalf("Kind = %v, want OfflineQueued", outcome.Kind)
	}
	if len(outcome.Faces) != 0 {
		t.Errorf("offline outcome must carry an empty face list")
	}
	if queue.Count() != 1 {
		t.Errorf("queue count = %d, want 1", queue.Count())
	}
	if conn.Online() {
		t.Error("transport failure should mark connection offline")
	}
}

func TestSendQueuedRejectsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "bad frame"}`))
	}))
	defer srv.Close()

	client, queue, _ := newTestClient(t, srv.URL)
	if err := client.SendQueued([]byte("jpeg")); err == nil {
		t.Fatal("HTTP >= 400 must be reported so the item stays queued")
	}
	if queue.Count() != 0 {
		t.Error("replay path must never re-enqueue")
	}
}

func TestProbe(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected probe path %s", r.URL.Path)
		}
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	client, _, _ := newTestClient(t, srv.URL)

	if !client.Probe(context.Background()) {
		t.Error("probe against healthy service should succeed")
	}
	healthy = false
	if client.Probe(context.Background()) {
		t.Error("probe against unhealthy service should fail")
	}
}

func TestSetAdminTokenSanitized(t *testing.T) {
	client, _, _ := newTestClient(t, "http://localhost:1")

	cases := map[string]string{
		"abc123":          "abc123",
		`"abc123"`:        "abc123",
		"Bearer abc123":   "abc123",
		"bearer  abc123 ": "abc123",
		"'abc123'":        "abc123",
	}
	for in, want := range cases {
		client.SetAdminToken(in)
		if got := client.AdminToken(); got != want {
			t.Errorf("SetAdminToken(%q) stored %q, want %q", in, got, want)
		}
	}
}

func TestAdminRequestRequiresLogin(t *testing.T) {
	client, _, _ := newTestClient(t, "http://localhost:1")
	if _, err := client.AdminListPersons(context.Background()); err == nil {
		t.Fatal("admin request without token must fail")
	}
}
