package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/domain"
	"github.com/auramd-consensus-server/internal/middleware"
	"github.com/auramd-consensus-server/internal/notify"
	"github.com/auramd-consensus-server/internal/review"
	"github.com/auramd-consensus-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	diagnosis     *service.DiagnosisService
	store         domain.ConsensusStore
	reviews       review.Store
	hub           *notify.Hub
	sourceStates  func() map[string]string
	router        *gin.Engine
	server        *http.Server
}

// Options carries the optional collaborators. Any of them may be nil; the
// corresponding endpoints answer 503 when their backend is absent.
type Options struct {
	Store        domain.ConsensusStore
	Reviews      review.Store
	Hub          *notify.Hub
	SourceStates func() map[string]string
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, diagnosis *service.DiagnosisService, opts Options) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())

	server := &Server{
		configManager: configManager,
		logger:        logger,
		diagnosis:     diagnosis,
		store:         opts.Store,
		reviews:       opts.Reviews,
		hub:           opts.Hub,
		sourceStates:  opts.SourceStates,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Router exposes the configured gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetConfig().Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.hub != nil {
		s.router.GET("/ws", func(c *gin.Context) {
			s.hub.ServeWS(c.Writer, c.Request)
		})
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/diagnosis/analyze", s.handleAnalyze)
		v1.GET("/consensus", s.handleListConsensus)
		v1.GET("/consensus/:id", s.handleGetConsensus)
		v1.GET("/consensus/:id/reviews", s.handleSessionReviews)
		v1.POST("/reviews", s.handleCreateReview)
	}
}

// handleHealth reports service liveness plus per-source breaker states.
func (s *Server) handleHealth(c *gin.Context) {
	payload := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	if s.sourceStates != nil {
		payload["opinion_sources"] = s.sourceStates()
	}
	if s.hub != nil {
		payload["websocket_clients"] = s.hub.ClientCount()
	}

	c.JSON(http.StatusOK, payload)
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
