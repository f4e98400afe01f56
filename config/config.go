package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration des Kiosk-Clients
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Health   HealthConfig   `mapstructure:"health"`
	Greeting GreetingConfig `mapstructure:"greeting"`
	TTS      TTSConfig      `mapstructure:"tts"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	I18n     I18nConfig     `mapstructure:"i18n"`
}

// APIConfig enthält die Einstellungen für den entfernten Erkennungsdienst
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	DeviceID       string `mapstructure:"device_id"`
	DeviceToken    string `mapstructure:"device_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Timeout für Erkennungsanfragen
}

// ServerConfig enthält die Einstellungen des lokalen Web-UI-Servers
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DataDir       string `mapstructure:"data_dir"`
	SessionSecret string `mapstructure:"session_secret"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen für den lokalen Ereignisverlauf
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite-Datei
}

// CameraConfig enthält Kameraeinstellungen
type CameraConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Index       int    `mapstructure:"index"`        // Kamera-Index (0 = Standard)
	CascadeFile string `mapstructure:"cascade_file"` // Haar-Cascade für Gesichter
	Mirror      bool   `mapstructure:"mirror"`
	MaxFaces    int    `mapstructure:"max_faces"` // Obergrenze pro Frame
}

// CaptureConfig enthält die Einstellungen der Aufnahmeschleife
type CaptureConfig struct {
	MaxFPS                 int     `mapstructure:"max_fps"`
	RequestIntervalSeconds float64 `mapstructure:"request_interval_seconds"` // Mindestabstand zwischen Erkennungsanfragen
	JPEGQuality            int     `mapstructure:"jpeg_quality"`
	ScanOnStart            bool    `mapstructure:"scan_on_start"`
}

// QueueConfig enthält die Einstellungen der Offline-Warteschlange
type QueueConfig struct {
	Dir                   string `mapstructure:"dir"`
	ReplayIntervalSeconds int    `mapstructure:"replay_interval_seconds"`
}

// HealthConfig enthält die Einstellungen der Erreichbarkeitsprüfung
type HealthConfig struct {
	ProbeTimeoutSeconds    int `mapstructure:"probe_timeout_seconds"`
	OfflineIntervalSeconds int `mapstructure:"offline_interval_seconds"` // Pollabstand im Offline-Zustand
	OnlineIntervalSeconds  int `mapstructure:"online_interval_seconds"`  // Pollabstand im Online-Zustand
}

// GreetingConfig enthält die Einstellungen der Begrüßungs-Sitzung
type GreetingConfig struct {
	QuietPeriodSeconds   float64 `mapstructure:"quiet_period_seconds"` // Ruhefenster bis zur Begrüßung
	CheckIntervalMillis  int     `mapstructure:"check_interval_millis"`
	FaceCooldownSeconds  int     `mapstructure:"face_cooldown_seconds"` // lokale Sperre pro erkannter Person
}

// TTSConfig enthält die Einstellungen der Sprachausgabe
type TTSConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	CacheDir        string  `mapstructure:"cache_dir"`
	PlayerCommand   string  `mapstructure:"player_command"` // externer Player, z.B. mpg123
	Voice           string  `mapstructure:"voice"`
	CooldownSeconds float64 `mapstructure:"cooldown_seconds"`
}

// MQTTConfig enthält die Konfiguration für den optionalen MQTT-Publisher
type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Broker    string `mapstructure:"broker"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	ClientID  string `mapstructure:"client_id"`
	BaseTopic string `mapstructure:"base_topic"`
}

// I18nConfig enthält die Spracheinstellungen für Begrüßungstexte
type I18nConfig struct {
	LocalesDir      string `mapstructure:"locales_dir"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration (ABSENSI_API_BASE_URL usw.)
	v.AutomaticEnv()
	v.SetEnvPrefix("ABSENSI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// API-Standardwerte
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.device_id", "stb-01")
	v.SetDefault("api.device_token", "")
	v.SetDefault("api.timeout_seconds", 15)

	// Server-Standardwerte
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.session_secret", "absensi-kiosk-secret")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./data/kiosk.log")

	// DB-Standardwerte
	v.SetDefault("db.file", "./data/kiosk.db")

	// Kamera-Standardwerte
	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.index", 0)
	v.SetDefault("camera.cascade_file", "./data/haarcascade_frontalface_default.xml")
	v.SetDefault("camera.mirror", false)
	v.SetDefault("camera.max_faces", 5)

	// Aufnahme-Standardwerte
	v.SetDefault("capture.max_fps", 30)
	v.SetDefault("capture.request_interval_seconds", 1.5)
	v.SetDefault("capture.jpeg_quality", 80)
	v.SetDefault("capture.scan_on_start", false)

	// Warteschlangen-Standardwerte
	v.SetDefault("queue.dir", "./offline_queue")
	v.SetDefault("queue.replay_interval_seconds", 60)

	// Health-Standardwerte
	v.SetDefault("health.probe_timeout_seconds", 3)
	v.SetDefault("health.offline_interval_seconds", 10)
	v.SetDefault("health.online_interval_seconds", 30)

	// Begrüßungs-Standardwerte
	v.SetDefault("greeting.quiet_period_seconds", 1.5)
	v.SetDefault("greeting.check_interval_millis", 500)
	v.SetDefault("greeting.face_cooldown_seconds", 10)

	// TTS-Standardwerte
	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.cache_dir", "./tts_cache")
	v.SetDefault("tts.player_command", "mpg123")
	v.SetDefault("tts.voice", "id-ID-GadisNeural")
	v.SetDefault("tts.cooldown_seconds", 4.0)

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "absensi-kiosk")
	v.SetDefault("mqtt.base_topic", "absensi")

	// i18n-Standardwerte
	v.SetDefault("i18n.locales_dir", "./web/locales")
	v.SetDefault("i18n.default_language", "id")
}

// validate prüft die Konfiguration auf offensichtliche Fehler
func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if cfg.Capture.RequestIntervalSeconds <= 0 {
		return fmt.Errorf("capture.request_interval_seconds must be positive")
	}
	if cfg.Greeting.QuietPeriodSeconds <= 0 {
		return fmt.Errorf("greeting.quiet_period_seconds must be positive")
	}
	if cfg.Camera.MaxFaces <= 0 {
		cfg.Camera.MaxFaces = 5
	}
	if cfg.API.DeviceToken == "" {
		log.Warn("api.device_token is empty; the recognition service may reject requests")
	}
	return nil
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	logDir := filepath.Dir(cfg.Log.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Das Warteschlangenverzeichnis wird bewusst NICHT hier angelegt:
	// die Offline-Queue erzeugt es erst beim ersten Enqueue.
	return nil
}
