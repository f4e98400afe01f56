package web

import (
	"net/http"
	"strconv"

	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/server/sse"
	"absensi-kiosk-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// handleStatus liefert den Gesamtzustand des Kiosks für die Statusanzeige
func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.conn.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"device_id": s.cfg.API.DeviceID,
		"scanning":  s.scan.Scanning(),
		"connection": gin.H{
			"online":               snapshot.Online,
			"consecutive_failures": snapshot.ConsecutiveFailures,
			"retry_backoff_sec":    int(snapshot.RetryBackoff.Seconds()),
		},
		"queue_count": s.queue.Count(),
		"stats":       s.results.Stats(),
		"system":      utils.GetSystemStats(),
	})
}

// handleActivity liefert den lokalen Verlauf, paginiert und absteigend
func (s *Server) handleActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := s.repo.RecentEvents(limit, offset)
	if err != nil {
		log.Errorf("Failed to load activity feed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
	})
}

// handleLabels liefert die Overlays des zuletzt verarbeiteten Frames
func (s *Server) handleLabels(c *gin.Context) {
	faces := s.results.LastFaces()
	labelFaces := make([]sse.LabelFace, 0, len(faces))
	for _, face := range faces {
		labelFaces = append(labelFaces, sse.LabelFace{
			QueueID: face.QueueID,
			Name:    face.Name,
			Status:  face.Status,
			Color:   models.LabelColor(face.Status),
			Box:     face.Box,
		})
	}
	c.JSON(http.StatusOK, gin.H{"faces": labelFaces})
}

// handleScanToggle schaltet den Erfassungsmodus um
func (s *Server) handleScanToggle(c *gin.Context) {
	enabled := !s.scan.Scanning()
	s.scan.SetScanning(enabled)
	log.Infof("Scan mode toggled, scanning=%t", enabled)
	c.JSON(http.StatusOK, gin.H{"scanning": enabled})
}

// handleStatsReset setzt die Tageszähler über den Router zurück, damit
// der Reset in der Ereignisreihenfolge bleibt
func (s *Server) handleStatsReset(c *gin.Context) {
	s.results.Post(router.StatsReset{})
	c.JSON(http.StatusAccepted, gin.H{"status": "reset queued"})
}
