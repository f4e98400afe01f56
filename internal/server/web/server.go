package web

import (
	"fmt"
	"io"
	"net/http"

	"absensi-kiosk-go/config"
	"absensi-kiosk-go/internal/api"
	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"
	"absensi-kiosk-go/internal/offline"
	"absensi-kiosk-go/internal/server/sse"
	"absensi-kiosk-go/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const sessionAdminKey = "admin_authenticated"

// ScanControl schaltet den Erfassungsmodus der Pipeline
type ScanControl interface {
	SetScanning(enabled bool)
	Scanning() bool
}

// Server ist die lokale Weboberfläche des Kiosks: Status, Verlauf,
// Live-Overlays über SSE und die Admin-Funktionen, die an den
// Erkennungsdienst durchgereicht werden
type Server struct {
	cfg     *config.Config
	client  *api.Client
	repo    *storage.Repository
	queue   *offline.Queue
	conn    *state.ConnectionState
	results *router.Router
	hub     *sse.Hub
	scan    ScanControl
	engine  *gin.Engine
}

// NewServer erstellt den Webserver und registriert alle Routen
func NewServer(cfg *config.Config, client *api.Client, repo *storage.Repository, queue *offline.Queue, conn *state.ConnectionState, results *router.Router, hub *sse.Hub, scan ScanControl) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowCredentials = false
	engine.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   8 * 3600,
		HttpOnly: true,
	})
	engine.Use(sessions.Sessions("kiosk_session", store))

	s := &Server{
		cfg:     cfg,
		client:  client,
		repo:    repo,
		queue:   queue,
		conn:    conn,
		results: results,
		hub:     hub,
		scan:    scan,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/events", s.handleSSE)

	apiGroup := s.engine.Group("/api")
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/activity", s.handleActivity)
		apiGroup.GET("/labels", s.handleLabels)
		apiGroup.POST("/scan/toggle", s.handleScanToggle)
		apiGroup.POST("/stats/reset", s.handleStatsReset)
	}

	admin := s.engine.Group("/api/admin")
	{
		admin.POST("/login", s.handleAdminLogin)
		admin.POST("/logout", s.handleAdminLogout)

		protected := admin.Group("")
		protected.Use(s.requireAdmin())
		{
			protected.GET("/persons", s.handleListPersons)
			protected.POST("/persons", s.handleCreatePerson)
			protected.DELETE("/persons/:id", s.handleDeletePerson)
			protected.POST("/persons/:id/enroll", s.handleEnrollPerson)
			protected.GET("/events", s.handleAdminEvents)
			protected.GET("/reports/monthly", s.handleMonthlyReport)
			protected.GET("/reports/export/csv", s.handleExportCSV)
			protected.POST("/rebuild_cache", s.handleRebuildCache)
			protected.POST("/reset_attendance", s.handleResetAttendance)
		}
	}
}

// requireAdmin lässt nur Anfragen mit angemeldeter Admin-Sitzung durch
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if auth, ok := session.Get(sessionAdminKey).(bool); !ok || !auth {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin login required"})
			return
		}
		c.Next()
	}
}

// handleSSE behandelt SSE-Verbindungen für Echtzeit-Updates
func (s *Server) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10) // Puffer für 10 Nachrichten

	s.hub.Register(client)
	defer s.hub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-client
		if !ok {
			return false // Kanal geschlossen, Stream beenden
		}
		c.SSEvent("message", string(msg))
		return true
	})
}

// Run startet den Webserver; blockiert bis zum Fehler
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Infof("Starting kiosk web server on %s", addr)
	return s.engine.Run(addr)
}

// Handler liefert den http.Handler, vor allem für Tests
func (s *Server) Handler() http.Handler {
	return s.engine
}
