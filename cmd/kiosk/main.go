package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/camera"
	"absensi-kiosk-go/internal/core/pipeline"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/health"
	"absensi-kiosk-go/internal/i18n"
	"absensi-kiosk-go/internal/integrations/mqtt"
	"absensi-kiosk-go/internal/logger"
	"absensi-kiosk-go/internal/offline"
	"absensi-kiosk-go/internal/server/sse"
	"absensi-kiosk-go/internal/server/web"
	"absensi-kiosk-go/internal/session"
	"absensi-kiosk-go/internal/storage"
	"absensi-kiosk-go/internal/tts"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Pfad zur Konfigurationsdatei")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	log.Infof("Starting attendance kiosk (device: %s)", cfg.API.DeviceID)

	repo, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open local database: %v", err)
	}
	defer repo.Close()

	translator, err := i18n.NewTranslator(cfg.I18n.LocalesDir, cfg.I18n.DefaultLanguage)
	if err != nil {
		log.Fatalf("Failed to initialize translations: %v", err)
	}

	hub := sse.NewHub()
	go hub.Run()

	queue := offline.NewQueue(cfg.Queue.Dir)
	if n := queue.Count(); n > 0 {
		log.Infof("Offline queue holds %d request(s) from previous runs", n)
	}

	conn := state.NewConnectionState()
	gate := state.NewGate(time.Duration(cfg.Capture.RequestIntervalSeconds * float64(time.Second)))

	client := api.NewClient(cfg.API, queue, conn, time.Duration(cfg.Health.ProbeTimeoutSeconds)*time.Second)

	engine := tts.NewEngine(cfg.TTS)
	publisher := mqtt.NewPublisher(cfg.MQTT)
	if err := publisher.Start(); err != nil {
		log.Warnf("Continuing without MQTT: %v", err)
	}
	defer publisher.Stop()

	aggregator := session.NewAggregator(
		time.Duration(cfg.Greeting.QuietPeriodSeconds*float64(time.Second)),
		time.Duration(cfg.Greeting.FaceCooldownSeconds)*time.Second,
		translator,
	)
	results := router.New(cfg.API.DeviceID, repo, hub, publisher, aggregator, engine, translator, queue)

	var source camera.FrameSource
	if cfg.Camera.Enabled {
		source, err = camera.NewOpenCVSource(cfg.Camera, cfg.Capture.JPEGQuality)
		if err != nil {
			log.Fatalf("Failed to initialize camera: %v", err)
		}
		defer source.Close()
	} else {
		log.Warn("Camera is disabled, capture loop will stay idle")
	}

	monitor := health.NewMonitor(
		client,
		conn,
		results,
		time.Duration(cfg.Health.OfflineIntervalSeconds)*time.Second,
		time.Duration(cfg.Health.OnlineIntervalSeconds)*time.Second,
	)
	if err := monitor.Start(); err != nil {
		log.Fatalf("Failed to start health monitor: %v", err)
	}
	defer monitor.Stop()

	pipe := pipeline.New(cfg, source, client, gate, queue, aggregator, results)
	if err := pipe.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	defer pipe.Stop()

	server := web.NewServer(cfg, client, repo, queue, conn, results, hub, pipe)
	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down kiosk...")
}
