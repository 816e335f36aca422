package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/config"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/service"
)

var log = logging.Component("http")

// Historian is the service surface the handlers depend on.
type Historian interface {
	ValidateDay(day string) error
	ParseSensorID(raw string) (int, error)
	RequestDay(ctx context.Context, day string) (service.Status, error)
	RequestSensor(sensorID int) (service.Status, error)
	IsDayQueued(day string) bool
	IsSensorQueued(sensorID int) bool
	IsDayProcessed(day string) (bool, error)
	LocationsForDay(day string) ([]string, error)
	AvailableDays() ([]string, error)
	IsDateListedUpstream(ctx context.Context, day string) (bool, error)
	SensorAverages(sensorID int, phenomenon models.Phenomenon) (*models.SensorAverageDocument, error)
}

// Server bundles router and dependencies for the historian API.
type Server struct {
	cfg    config.Config
	svc    Historian
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, svc Historian) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	if cfg.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.BearerToken))
	}

	server := &Server{cfg: cfg, svc: svc, engine: engine}
	server.registerRoutes()
	server.registerLegacyRoutes()
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// read-only view of the generated documents
	s.engine.Static("/data", s.cfg.DataDir)
}

// upstreamTimeout bounds handlers that may consult the archive listing.
func (s *Server) upstreamTimeout() time.Duration {
	if s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout
	}
	return 30 * time.Second
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var fetchErr *errs.FetchError
	switch {
	case errors.Is(err, errs.ErrInvalidDate),
		errors.Is(err, errs.ErrFutureDate),
		errors.Is(err, errs.ErrInvalidSensorID):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrNotListed):
		return http.StatusNotFound
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
