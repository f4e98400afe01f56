package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository kapselt den lokalen Verlauf der Anwesenheitsereignisse.
// Die Datenbank ist ein reiner Kiosk-Cache; die autoritative Ablage
// liegt beim Erkennungsdienst.
type Repository struct {
	db *gorm.DB
}

// Open öffnet die SQLite-Datenbank und führt die Migration durch
func Open(cfg config.DBConfig) (*Repository, error) {
	if cfg.File != "" {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)
	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.AutoMigrate(&models.AttendanceEvent{}); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Repository{db: db}, nil
}

// SaveEvent speichert ein Anwesenheitsereignis im lokalen Verlauf
func (r *Repository) SaveEvent(event *models.AttendanceEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to save attendance event: %w", err)
	}
	return nil
}

// RecentEvents liefert die jüngsten Ereignisse absteigend nach Zeitpunkt,
// zusammen mit der Gesamtzahl für die Paginierung
func (r *Repository) RecentEvents(limit, offset int) ([]models.AttendanceEvent, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.db.Model(&models.AttendanceEvent{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attendance events: %w", err)
	}

	var events []models.AttendanceEvent
	err := r.db.Order("observed_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load attendance events: %w", err)
	}
	return events, total, nil
}

// Statistics aggregiert die Tageszähler aus dem lokalen Verlauf seit
// Mitternacht lokaler Zeit
func (r *Repository) Statistics() (*models.Stats, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := &models.Stats{}
	base := func() *gorm.DB {
		return r.db.Model(&models.AttendanceEvent{}).Where("observed_at >= ?", midnight)
	}

	var count int64
	if err := base().Where("event_type = ? AND status = ?", models.EventTypeIn, models.FaceStatusOK).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.CheckIn = int(count)

	if err := base().Where("event_type = ? AND status = ?", models.EventTypeOut, models.FaceStatusOK).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.CheckOut = int(count)

	if err := base().Where("late = ?", true).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.Late = int(count)

	if err := base().Where("status = ?", models.FaceStatusUnknown).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.Unknown = int(count)

	return stats, nil
}

// ResetEvents löscht den gesamten lokalen Verlauf und liefert die Anzahl
// der entfernten Einträge
func (r *Repository) ResetEvents() (int64, error) {
	result := r.db.Unscoped().Where("1 = 1").Delete(&models.AttendanceEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset attendance events: %w", result.Error)
	}
	log.Infof("Local attendance history reset, %d event(s) deleted", result.RowsAffected)
	return result.RowsAffected, nil
}

// Close schließt die Datenbankverbindung
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
