package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/wardwatch/internal/platform/retry"
	"github.com/pscheid92/wardwatch/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:      maxAttempts,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		RateLimitBackoff: 5 * time.Millisecond,
	}
}

// flakyServer rejects the first n handshakes with status, then upgrades.
func flakyServer(t *testing.T, n int32, status int) (string, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= n {
			http.Error(w, "nope", status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http"), &calls
}

func TestDial_RetriesUntilAccepted(t *testing.T) {
	url, calls := flakyServer(t, 2, http.StatusTooManyRequests)

	conn, err := Dial(context.Background(), url, fastPolicy(5))
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDial_ForbiddenIsPermanent(t *testing.T) {
	url, calls := flakyServer(t, 100, http.StatusForbidden)

	_, err := Dial(context.Background(), url, fastPolicy(5))
	require.Error(t, err)

	var perm *retry.PermanentError
	require.True(t, errors.As(err, &perm))
	var hs *HandshakeError
	require.True(t, errors.As(err, &hs))
	assert.Equal(t, http.StatusForbidden, hs.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDial_GivesUpAfterMaxAttempts(t *testing.T) {
	url, calls := flakyServer(t, 100, http.StatusInternalServerError)

	_, err := Dial(context.Background(), url, fastPolicy(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifyDial(t *testing.T) {
	assert.Equal(t, retry.Retry, classifyDial(errors.New("connection refused")))
	assert.Equal(t, retry.After, classifyDial(&HandshakeError{StatusCode: http.StatusServiceUnavailable}))
	assert.Equal(t, retry.Stop, classifyDial(&HandshakeError{StatusCode: http.StatusNotFound}))
	assert.Equal(t, retry.Retry, classifyDial(&HandshakeError{StatusCode: http.StatusBadGateway}))
}

func TestFramesAreAcceptedByDecoder(t *testing.T) {
	join, err := ProducerJoinFrame("101", "Ann")
	require.NoError(t, err)
	msg, err := protocol.Decode(join)
	require.NoError(t, err)
	assert.Equal(t, protocol.ProducerJoin{ProducerID: "101", DisplayName: "Ann"}, msg)

	observer, err := ObserverJoinFrame()
	require.NoError(t, err)
	msg, err = protocol.Decode(observer)
	require.NoError(t, err)
	assert.IsType(t, protocol.ObserverJoin{}, msg)

	reading := NewVitalsGenerator(rand.New(rand.NewPCG(1, 2))).Next()
	report, err := ReportFrame("101", reading)
	require.NoError(t, err)
	msg, err = protocol.Decode(report)
	require.NoError(t, err)
	r, ok := msg.(protocol.Report)
	require.True(t, ok)
	assert.Equal(t, "101", r.ProducerID)
	assert.Equal(t, reading, r.Reading)
	assert.True(t, r.Timestamp.IsZero())
}

func TestVitalsGenerator_Ranges(t *testing.T) {
	gen := NewVitalsGenerator(rand.New(rand.NewPCG(42, 7)))

	for range 1000 {
		r := gen.Next()
		assert.GreaterOrEqual(t, r.HeartRate, 60)
		assert.LessOrEqual(t, r.HeartRate, 109)
		assert.GreaterOrEqual(t, r.OxygenLevel, 90)
		assert.LessOrEqual(t, r.OxygenLevel, 99)
		assert.GreaterOrEqual(t, r.Temperature, 36.0)
		assert.LessOrEqual(t, r.Temperature, 38.0)
		assert.Nil(t, r.Note)
	}
}
