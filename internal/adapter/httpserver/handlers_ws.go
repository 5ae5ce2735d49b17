package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wardwatch/internal/envelope"
	apperrors "github.com/pscheid92/wardwatch/internal/platform/errors"
)

// handleWebSocket upgrades the request and blocks for the connection's lifetime.
// The connection starts unclassified; its first frame decides the role.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		if s.metrics != nil {
			s.metrics.WebSocket.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
		}
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("server at connection capacity", nil)
		}
		return apperrors.RateLimitedError("too many connections").WithContext("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		if s.metrics != nil {
			s.metrics.WebSocket.ConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		}
		slog.DebugContext(c.Request().Context(), "Websocket upgrade failed", "error", err)
		return nil
	}

	opts := envelope.Options{BufferSize: s.config.SendBufferSize, Clock: s.clock}
	if s.metrics != nil {
		opts.Metrics = s.metrics.WebSocket
	}
	env := envelope.New(conn, s.presence, opts)

	if err := s.presence.Attach(env); err != nil {
		slog.WarnContext(c.Request().Context(), "Rejecting websocket, presence tracker unavailable", "error", err)
		env.CloseGraceful("server unavailable")
		return nil
	}

	slog.DebugContext(c.Request().Context(), "Websocket connected", "conn_id", env.ID().String(), "remote_ip", ip)
	env.Run(c.Request().Context())
	return nil
}
