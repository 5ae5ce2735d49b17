package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/wardwatch/internal/platform/retry"
)

const handshakeTimeout = 10 * time.Second

// DefaultPolicy retries forever with backoff from 1s up to 30s. A 429 from the
// server waits the full 30s.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
		RateLimitBackoff: 30 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Connect failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

// HandshakeError is returned when the server answered the upgrade with a
// non-101 status.
type HandshakeError struct {
	StatusCode int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d", e.StatusCode)
}

func classifyDial(err error) retry.Action {
	var hs *HandshakeError
	if !errors.As(err, &hs) {
		return retry.Retry
	}
	switch hs.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return retry.After
	case http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return retry.Stop
	default:
		return retry.Retry
	}
}

func dialOnce(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
		return nil, &HandshakeError{StatusCode: resp.StatusCode}
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Dial connects to url, retrying transient failures under p. Origin and
// not-found rejections are permanent.
func Dial(ctx context.Context, url string, p retry.Policy) (*websocket.Conn, error) {
	return retry.Do(ctx, p, classifyDial, func(ctx context.Context) (*websocket.Conn, error) {
		return dialOnce(ctx, url)
	})
}
