package tts

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"absensi-kiosk-go/config"

	log "github.com/sirupsen/logrus"
)

// Engine gibt Ansagen über einen externen Player aus. Fertige
// Audiodateien werden unter einem Hash des Texts im Cache erwartet;
// fehlt die Datei, wird die Ansage nur geloggt. Die Synthese selbst
// findet außerhalb des Kiosks statt.
type Engine struct {
	cfg config.TTSConfig

	mu       sync.Mutex
	lastKey  string
	lastTime time.Time
}

// NewEngine erstellt eine Engine; bei deaktiviertem TTS wird nil
// geliefert. Eine nil-Engine verwirft alle Aufrufe.
func NewEngine(cfg config.TTSConfig) *Engine {
	if !cfg.Enabled {
		log.Info("TTS engine is disabled in configuration")
		return nil
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0750); err != nil {
			log.Warnf("Failed to create TTS cache directory '%s': %v", cfg.CacheDir, err)
		}
	}
	return &Engine{cfg: cfg}
}

// SpeakOnce gibt eine Ansage höchstens einmal pro Abkühlzeit aus.
// Der Schlüssel identifiziert die Ansage; dieselbe Ansage kurz
// hintereinander wird verschluckt, eine andere unterbricht die
// Abkühlung nicht.
func (e *Engine) SpeakOnce(key, text string) {
	if e == nil || text == "" {
		return
	}

	cooldown := time.Duration(e.cfg.CooldownSeconds) * time.Second
	now := time.Now()

	e.mu.Lock()
	if key == e.lastKey && now.Sub(e.lastTime) < cooldown {
		e.mu.Unlock()
		log.Debugf("TTS suppressed repeated announcement '%s'", key)
		return
	}
	e.lastKey = key
	e.lastTime = now
	e.mu.Unlock()

	go e.play(text)
}

// play sucht die gecachte Audiodatei und spielt sie ab
func (e *Engine) play(text string) {
	path := e.CachePath(text)
	if _, err := os.Stat(path); err != nil {
		log.Infof("TTS (no cached audio): %s", text)
		return
	}

	if e.cfg.PlayerCommand == "" {
		log.Warnf("TTS player command not configured, cannot play '%s'", path)
		return
	}

	parts := strings.Fields(e.cfg.PlayerCommand)
	args := append(parts[1:], path)
	cmd := exec.Command(parts[0], args...)
	if err := cmd.Run(); err != nil {
		log.Errorf("TTS playback failed: %v", err)
	}
}

// CachePath liefert den Cache-Pfad einer Ansage. Der Dateiname hängt
// nur vom Text und der Stimme ab, damit identische Ansagen dieselbe
// Datei treffen.
func (e *Engine) CachePath(text string) string {
	sum := md5.Sum([]byte(e.cfg.Voice + "|" + text))
	name := fmt.Sprintf("tts_%s.mp3", hex.EncodeToString(sum[:])[:16])
	return filepath.Join(e.cfg.CacheDir, name)
}
