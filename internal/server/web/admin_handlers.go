package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/validate"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// handleAdminLogin meldet einen Administrator beim Erkennungsdienst an
// und markiert die lokale Sitzung
func (s *Server) handleAdminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	username, err := validate.Username(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	password, err := validate.Password(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.client.AdminLogin(c.Request.Context(), username, password); err != nil {
		log.Warnf("Admin login failed for '%s': %v", username, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdminKey, true)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	log.Infof("Admin '%s' logged in", username)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleAdminLogout beendet die lokale Admin-Sitzung
func (s *Server) handleAdminLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionAdminKey)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListPersons(c *gin.Context) {
	persons, err := s.client.AdminListPersons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons})
}

func (s *Server) handleCreatePerson(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name, err := validate.PersonName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := s.client.AdminCreatePerson(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, person)
}

func (s *Server) handleDeletePerson(c *gin.Context) {
	id, err := validate.ID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.client.AdminDeletePerson(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleEnrollPerson nimmt hochgeladene Gesichtsbilder entgegen, legt sie
// temporär ab und reicht sie an den Erkennungsdienst weiter
func (s *Server) handleEnrollPerson(c *gin.Context) {
	id, err := validate.ID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no images uploaded"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "enroll-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage uploads"})
		return
	}
	defer os.RemoveAll(tmpDir)

	paths := make([]string, 0, len(files))
	for i, file := range files {
		dst := filepath.Join(tmpDir, strconv.Itoa(i)+"_"+filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage uploads"})
			return
		}
		paths = append(paths, dst)
	}

	result, err := s.client.AdminEnrollPerson(c.Request.Context(), id, paths)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAdminEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := api.EventFilter{
		Limit:    limit,
		Offset:   offset,
		Status:   c.Query("status"),
		Name:     c.Query("name"),
		Day:      c.Query("day"),
		DeviceID: c.Query("device_id"),
	}

	events, err := s.client.AdminListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleMonthlyReport(c *gin.Context) {
	month, err := validate.Month(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.client.AdminMonthlyReport(c.Request.Context(), month)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleExportCSV(c *gin.Context) {
	month, err := validate.Month(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := s.client.AdminExportCSV(c.Request.Context(), month)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=attendance_"+month+".csv")
	c.Data(http.StatusOK, "text/csv", data)
}

func (s *Server) handleRebuildCache(c *gin.Context) {
	if err := s.client.AdminRebuildCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rebuilt"})
}

// handleResetAttendance setzt den Verlauf beim Dienst und lokal zurück
func (s *Server) handleResetAttendance(c *gin.Context) {
	result, err := s.client.AdminResetAttendance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	localDeleted, err := s.repo.ResetEvents()
	if err != nil {
		log.Errorf("Failed to reset local history: %v", err)
	}
	s.results.Post(router.StatsReset{})

	c.JSON(http.StatusOK, gin.H{
		"events_deleted": result.EventsDeleted,
		"daily_deleted":  result.DailyDeleted,
		"local_deleted":  localDeleted,
	})
}
