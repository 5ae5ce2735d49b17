package httpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/envelope"
	"github.com/pscheid92/wardwatch/internal/fanout"
	"github.com/pscheid92/wardwatch/internal/platform/config"
	"github.com/pscheid92/wardwatch/internal/presence"
	"github.com/pscheid92/wardwatch/internal/storage"
)

// PresenceService is what the HTTP layer needs from the presence tracker.
type PresenceService interface {
	envelope.Handler
	Attach(conn presence.Conn) error
	OnFileStored(ctx context.Context, producerID, fileName, savedName string, size int64, category, description, storagePath string) (domain.FileEvent, fanout.Report, error)
	Producers(ctx context.Context) ([]domain.ProducerRecord, error)
	Counts() domain.Counts
}

// FileStore persists uploads and lists them per producer.
type FileStore interface {
	Save(ctx context.Context, producerID, originalName string, r io.Reader, maxBytes int64) (storage.SavedFile, error)
	List(ctx context.Context, producerID string) ([]domain.StoredFile, error)
	Root() string
}

type Deps struct {
	Presence     PresenceService
	Store        FileStore
	Metrics      *metrics.Set
	Registry     *prometheus.Registry
	Clock        clockwork.Clock
	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	presence PresenceService
	store    FileStore
	metrics  *metrics.Set
	registry *prometheus.Registry

	upgrader     websocket.Upgrader
	limits       *ConnectionLimits
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		clock:    clock,
		presence: deps.Presence,
		store:    deps.Store,
		metrics:  deps.Metrics,
		registry: deps.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		},
		limits:       NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		healthChecks: deps.HealthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// ServeHTTP lets tests drive the full middleware stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Upgraded websocket connections are not
// tracked by the HTTP server; the presence tracker closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
