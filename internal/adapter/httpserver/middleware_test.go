package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wardwatch/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCorrelation(t *testing.T, header string) (seen string, rec *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	if header != "" {
		req.Header.Set(correlationHeader, header)
	}
	rec = httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)
	require.NoError(t, err)
	return seen, rec
}

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	seen, rec := runCorrelation(t, "")

	assert.Len(t, seen, 8)
	assert.Equal(t, seen, rec.Header().Get(correlationHeader))
}

func TestCorrelationMiddleware_ReusesCallerID(t *testing.T) {
	seen, rec := runCorrelation(t, "req-from-proxy")

	assert.Equal(t, "req-from-proxy", seen)
	assert.Equal(t, "req-from-proxy", rec.Header().Get(correlationHeader))
}

func TestCorrelationMiddleware_RejectsOversizedID(t *testing.T) {
	seen, _ := runCorrelation(t, strings.Repeat("x", 65))

	assert.Len(t, seen, 8)
}

func TestNewCheckOrigin(t *testing.T) {
	appURL := "https://ward.example.com/dashboard"

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", "", false, true},
		{"app origin", "https://ward.example.com", false, true},
		{"different host", "https://evil.com", false, false},
		{"different port", "https://ward.example.com:9090", false, false},
		{"http instead of https", "http://ward.example.com", false, false},
		{"localhost dev", "http://localhost:3000", true, true},
		{"loopback dev", "http://127.0.0.1:8888", true, true},
		{"localhost prod rejected", "http://localhost:3000", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(appURL, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestNewCheckOrigin_NoAppURL(t *testing.T) {
	checker := NewCheckOrigin("", false)
	r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")

	assert.False(t, checker(r))
}
