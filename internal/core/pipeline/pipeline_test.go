package pipeline

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/camera"
	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/i18n"
	"absensi-kiosk-go/internal/offline"
	"absensi-kiosk-go/internal/server/sse"
	"absensi-kiosk-go/internal/session"
)

type fakeSource struct {
	capture  *camera.Capture
	captures int32
}

func (f *fakeSource) Capture() (*camera.Capture, error) {
	atomic.AddInt32(&f.captures, 1)
	return f.capture, nil
}

func (f *fakeSource) Close() error { return nil }

func withFace() *camera.Capture {
	return &camera.Capture{
		FrameJPEG: []byte("jpeg"),
		Faces:     []camera.Detection{{Box: models.BoundingBox{XMax: 10, YMax: 10}}},
	}
}

func newTestPipeline(t *testing.T, baseURL string, source camera.FrameSource) (*Pipeline, *state.Gate) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Capture.MaxFPS = 10
	cfg.Capture.ScanOnStart = true
	cfg.Greeting.CheckIntervalMillis = 500
	cfg.Queue.ReplayIntervalSeconds = 60

	queue := offline.NewQueue(filepath.Join(t.TempDir(), "queue"))
	conn := state.NewConnectionState()
	client := api.NewClient(config.APIConfig{
		BaseURL:        baseURL,
		DeviceID:       "stb-test",
		DeviceToken:    "secret",
		TimeoutSeconds: 2,
	}, queue, conn, time.Second)

	translator := i18n.NewTranslatorFromDefaults()
	aggregator := session.NewAggregator(1500*time.Millisecond, 0, translator)
	results := router.New("stb-test", nil, sse.NewHub(), nil, aggregator, nil, translator, queue)

	gate := state.NewGate(100 * time.Millisecond)
	return New(cfg, source, client, gate, queue, aggregator, results), gate
}

func TestCaptureTickSingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Write([]byte(`{"faces": [], "recognized_names": []}`))
	}))
	defer srv.Close()
	defer close(release)

	source := &fakeSource{capture: withFace()}
	p, _ := newTestPipeline(t, srv.URL, source)

	t0 := time.Now()
	p.captureTick(t0)

	// Warten bis die erste Anfrage beim Server angekommen ist
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("first recognition request never reached the server")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Während die erste Anfrage unterwegs ist, darf trotz abgelaufenem
	// Mindestabstand keine zweite starten
	p.captureTick(t0.Add(time.Second))
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("requests = %d while one is in flight, want 1", got)
	}
}

func TestCaptureTickSkipsWithoutFaces(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"faces": [], "recognized_names": []}`))
	}))
	defer srv.Close()

	source := &fakeSource{capture: &camera.Capture{FrameJPEG: []byte("jpeg")}}
	p, gate := newTestPipeline(t, srv.URL, source)

	p.captureTick(time.Now())
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 0 {
		t.Error("frame without faces must not trigger a request")
	}
	if gate.InFlight() {
		t.Error("gate must not be held when nothing was sent")
	}
}

func TestCaptureTickRespectsScanMode(t *testing.T) {
	source := &fakeSource{capture: withFace()}
	p, _ := newTestPipeline(t, "http://localhost:1", source)

	p.SetScanning(false)
	p.captureTick(time.Now())

	if atomic.LoadInt32(&source.captures) != 0 {
		t.Error("camera must not be read while scanning is disabled")
	}

	p.SetScanning(true)
	if !p.Scanning() {
		t.Error("scan mode toggle lost")
	}
}

func TestQuietTickPostsGreeting(t *testing.T) {
	source := &fakeSource{capture: withFace()}
	p, _ := newTestPipeline(t, "http://localhost:1", source)

	t0 := time.Now()
	p.aggregator.Observe(models.FaceObservation{
		Name: "Alice", Status: models.FaceStatusOK, EventType: models.EventTypeIn,
	}, t0)

	p.quietTick(t0.Add(time.Second))
	p.results.Drain()
	// Noch innerhalb des Ruhefensters: keine Ansage
	if p.aggregator.PendingCount() != 1 {
		t.Fatal("greeting fired before the quiet period elapsed")
	}

	p.quietTick(t0.Add(2 * time.Second))
	if p.aggregator.PendingCount() != 0 {
		t.Error("greeting session did not fire after the quiet period")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	source := &fakeSource{capture: withFace()}
	p, _ := newTestPipeline(t, "http://localhost:1", source)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	p.Stop()
	p.Stop()
}
