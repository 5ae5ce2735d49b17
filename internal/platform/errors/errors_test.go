package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{NotFoundError("gone"), http.StatusNotFound},
		{TooLargeError("big", nil), http.StatusRequestEntityTooLarge},
		{RateLimitedError("slow down"), http.StatusTooManyRequests},
		{UnavailableError("stopping", nil), http.StatusServiceUnavailable},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{&Error{Type: "mystery"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := InternalError("failed to store file", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: failed to store file: disk full", err.Error())
	assert.Equal(t, "validation: bad", ValidationError("bad").Error())
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	orig := NotFoundError("no such patient")
	assert.Same(t, orig, AsStructuredError(fmt.Errorf("wrapped: %w", orig)))

	plain := AsStructuredError(errors.New("boom"))
	assert.Equal(t, TypeInternal, plain.Type)
	assert.Equal(t, "internal server error", plain.Message)
}

func TestToResponse(t *testing.T) {
	resp := ValidationError("patientId is required").WithContext("field", "patientId").ToResponse()
	assert.False(t, resp.Success)
	assert.Equal(t, "patientId is required", resp.Error)
	assert.Equal(t, map[string]any{"field": "patientId"}, resp.Context)

	assert.Nil(t, NotFoundError("x").ToResponse().Context)
}

func serve(t *testing.T, counter *prometheus.CounterVec, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/upload", nil), rec)
	return rec, Middleware(counter)(handler)(c)
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_errors_total"}, []string{"type"})
}

func TestMiddleware_StructuredError(t *testing.T) {
	counter := newCounter()
	rec, err := serve(t, counter, func(echo.Context) error {
		return ValidationError("no file provided")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no file provided", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.InDelta(t, 1, testutil.ToFloat64(counter.WithLabelValues("validation")), 0)
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	rec, err := serve(t, nil, func(echo.Context) error {
		return errors.New("unexpected")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unexpected")
}

func TestMiddleware_PassesEchoErrorsThrough(t *testing.T) {
	counter := newCounter()
	httpErr := echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	_, err := serve(t, counter, func(echo.Context) error { return httpErr })

	assert.Same(t, httpErr, err)
	assert.InDelta(t, 1, testutil.ToFloat64(counter.WithLabelValues("rate_limited")), 0)
}

func TestMiddleware_NoError(t *testing.T) {
	rec, err := serve(t, nil, func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWrapHTTPError(t *testing.T) {
	wrapped := WrapHTTPError(echo.NewHTTPError(http.StatusRequestEntityTooLarge))
	assert.Equal(t, TypeTooLarge, wrapped.Type)
	assert.Equal(t, "Request Entity Too Large", wrapped.Message)

	cause := errors.New("inner")
	wrapped = WrapHTTPError(echo.NewHTTPError(http.StatusNotFound, "missing").SetInternal(cause))
	assert.Equal(t, TypeNotFound, wrapped.Type)
	assert.Equal(t, "missing", wrapped.Message)
	assert.ErrorIs(t, wrapped, cause)
}

func TestRespond_WritesAndCounts(t *testing.T) {
	counter := newCounter()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)

	require.NoError(t, Respond(c, RateLimitedError("rate limit exceeded"), counter))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, TypeRateLimited, resp.Type)
	assert.Equal(t, "rate limit exceeded", resp.Error)
	assert.InDelta(t, 1, testutil.ToFloat64(counter.WithLabelValues("rate_limited")), 0)
}
