package camera

import (
	"fmt"
	"image"
	"sort"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// OpenCVSource liest Frames von einer lokalen Kamera und detektiert
// Gesichter mit einem Haar-Kaskaden-Klassifikator
type OpenCVSource struct {
	capture    *gocv.VideoCapture
	classifier gocv.CascadeClassifier
	cfg        config.CameraConfig
	quality    int
}

// NewOpenCVSource öffnet die Kamera und lädt die Kaskade
func NewOpenCVSource(cfg config.CameraConfig, jpegQuality int) (*OpenCVSource, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.Index, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadeFile) {
		capture.Close()
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file '%s'", cfg.CascadeFile)
	}

	log.Infof("Camera %d opened with cascade '%s'", cfg.Index, cfg.CascadeFile)
	return &OpenCVSource{
		capture:    capture,
		classifier: classifier,
		cfg:        cfg,
		quality:    jpegQuality,
	}, nil
}

// Capture liest genau einen Frame, detektiert Gesichter und kodiert
// Frame und Ausschnitte als JPEG
func (s *OpenCVSource) Capture() (*Capture, error) {
	frame := gocv.NewMat()
	defer frame.Close()

	if ok := s.capture.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("failed to read frame from camera %d", s.cfg.Index)
	}

	if s.cfg.Mirror {
		gocv.Flip(frame, &frame, 1)
	}

	rects := s.classifier.DetectMultiScale(frame)

	// Von links nach rechts, damit die Overlay-Reihenfolge der
	// Bildreihenfolge entspricht
	sort.Slice(rects, func(i, j int) bool { return rects[i].Min.X < rects[j].Min.X })

	maxFaces := s.cfg.MaxFaces
	if maxFaces <= 0 {
		maxFaces = 5
	}
	if len(rects) > maxFaces {
		rects = rects[:maxFaces]
	}

	params := []int{gocv.IMWriteJpegQuality, s.quality}
	frameBuf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer frameBuf.Close()

	capture := &Capture{FrameJPEG: append([]byte(nil), frameBuf.GetBytes()...)}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	for _, rect := range rects {
		clipped := rect.Intersect(bounds)
		if clipped.Empty() {
			continue
		}

		region := frame.Region(clipped)
		cropBuf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, region, params)
		region.Close()
		if err != nil {
			log.Warnf("Failed to encode face crop: %v", err)
			continue
		}

		capture.Faces = append(capture.Faces, Detection{
			Box: models.BoundingBox{
				XMin: clipped.Min.X,
				YMin: clipped.Min.Y,
				XMax: clipped.Max.X,
				YMax: clipped.Max.Y,
			},
			Crop: append([]byte(nil), cropBuf.GetBytes()...),
		})
		cropBuf.Close()
	}

	return capture, nil
}

// Close gibt Kamera und Klassifikator frei
func (s *OpenCVSource) Close() error {
	s.classifier.Close()
	return s.capture.Close()
}
