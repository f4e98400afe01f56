package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FaceStatus beschreibt den Erkennungsstatus eines einzelnen Gesichts
type FaceStatus string

const (
	FaceStatusOK        FaceStatus = "ok"
	FaceStatusUnknown   FaceStatus = "unknown"
	FaceStatusCooldown  FaceStatus = "cooldown"
	FaceStatusDuplicate FaceStatus = "duplicate"
)

// Ereignistypen des Erkennungsdienstes
const (
	EventTypeIn  = "IN"
	EventTypeOut = "OUT"
)

// BoundingBox repräsentiert die Begrenzungsbox eines Gesichts
type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// FaceObservation ist ein Eintrag einer Multi-Gesicht-Antwort.
// QueueID ist die Position im Bild (1..5, von links nach rechts).
type FaceObservation struct {
	QueueID   int          `json:"queue_id"`
	Name      string       `json:"name,omitempty"`
	Status    FaceStatus   `json:"status"`
	EventType string       `json:"event_type,omitempty"`
	Late      bool         `json:"late,omitempty"`
	Box       *BoundingBox `json:"box,omitempty"`
}

// PendingFace ist ein erfolgreich erkanntes Gesicht, das in der
// Begrüßungs-Sitzung auf das Ruhefenster wartet
type PendingFace struct {
	Name      string
	EventType string
	Late      bool
}

// Stats enthält die Zähler der Statistik-Karten im Kiosk-UI
type Stats struct {
	CheckIn  int `json:"checkin"`
	CheckOut int `json:"checkout"`
	Late     int `json:"late"`
	Unknown  int `json:"unknown"`
}

// AttendanceEvent ist ein abgeschlossener Eintrag des Aktivitätsverlaufs
type AttendanceEvent struct {
	gorm.Model
	Name       string         `gorm:"index"`
	Status     string         `gorm:"index"` // ok, unknown, error, greeting, offline_queued
	EventType  string         `gorm:"index"` // IN, OUT oder leer
	Late       bool
	Message    string
	RawFaces   datatypes.JSON `gorm:"type:json;null"` // Rohdaten der API-Antwort
	ObservedAt time.Time      `gorm:"index"`
}

// LabelColor liefert die Statusfarbe für die Anzeige einer Begrenzungsbox
func LabelColor(status FaceStatus) string {
	switch status {
	case FaceStatusOK:
		return "#10B981" // recognized
	case FaceStatusUnknown:
		return "#EF4444" // unknown
	case FaceStatusCooldown, FaceStatusDuplicate:
		return "#F59E0B" // verifying
	default:
		return "#6B7280" // scanning
	}
}
