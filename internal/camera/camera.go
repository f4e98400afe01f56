package camera

import (
	"absensi-kiosk-go/internal/core/models"
)

// Detection ist ein einzelnes im Frame gefundenes Gesicht
type Detection struct {
	Box  models.BoundingBox
	Crop []byte
}

// Capture ist das Ergebnis eines einzelnen Kamera-Ticks: der gesamte
// Frame als JPEG sowie die lokal detektierten Gesichter
type Capture struct {
	FrameJPEG []byte
	Faces     []Detection
}

// FrameSource liefert Frames mit lokaler Gesichtsdetektion. Die
// Erkennung der Identität übernimmt der Dienst; die lokale Detektion
// entscheidet nur, ob sich ein Netzwerkaufruf überhaupt lohnt.
type FrameSource interface {
	Capture() (*Capture, error)
	Close() error
}
