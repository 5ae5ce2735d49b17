package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	apperrors "github.com/pscheid92/wardwatch/internal/platform/errors"
	"github.com/pscheid92/wardwatch/internal/storage"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	var errorsTotal *prometheus.CounterVec
	if s.metrics != nil {
		s.echo.Use(s.metrics.HTTP.Middleware())
		errorsTotal = s.metrics.HTTP.ErrorsTotal
	}
	s.echo.Use(apperrors.Middleware(errorsTotal))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))

	s.registerHealthRoutes()

	s.echo.GET("/ws", s.handleWebSocket)

	api := s.echo.Group("/api", newAPIRateLimiter(s.config.APIRate, s.config.APIBurst, errorsTotal))
	api.POST("/upload", s.handleUpload)
	api.GET("/files/:patientId", s.handleListFiles)
	api.GET("/patients", s.handleListProducers)
	api.GET("/health", s.handlePresenceHealth)

	s.echo.Static(storage.URLPrefix, s.store.Root())

	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
