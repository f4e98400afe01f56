package api

import "absensi-kiosk-go/internal/core/models"

// OutcomeKind unterscheidet die drei Ausgänge einer Erkennungsanfrage
type OutcomeKind int

const (
	// OutcomeRecognized: der Dienst hat geantwortet, Gesichter liegen vor
	OutcomeRecognized OutcomeKind = iota
	// OutcomeServerError: Dienst erreichbar, Anfrage abgelehnt (HTTP >= 400)
	OutcomeServerError
	// OutcomeOfflineQueued: Dienst unerreichbar, Anfrage lokal gespeichert
	OutcomeOfflineQueued
)

// Outcome ist das typisierte Ergebnis eines Recognize-Aufrufs. Transportfehler
// erreichen den Aufrufer niemals als Fehler, sondern nur als OfflineQueued.
type Outcome struct {
	Kind            OutcomeKind
	Faces           []models.FaceObservation
	RecognizedNames []string
	CombinedAudio   string

	// Nur bei OutcomeServerError gesetzt
	StatusCode int
	Detail     string
}
