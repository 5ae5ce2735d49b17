package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/platform/config"
	"github.com/pscheid92/wardwatch/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameWait = 2 * time.Second

func startHTTP(t *testing.T, env *testEnv) string {
	t.Helper()
	ts := httptest.NewServer(env.server)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	frame := map[string]any{"type": frameType}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(frameWait)))
	var f protocol.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

type presenceFrame struct {
	Kind        domain.PresenceKind `json:"kind"`
	ProducerID  string              `json:"patientId"`
	DisplayName string              `json:"name"`
}

func TestWebSocket_ObserverSeesProducerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	url := startHTTP(t, env)

	doctor := dial(t, url)
	sendFrame(t, doctor, protocol.TypeObserverJoin, nil)

	snap := readFrame(t, doctor)
	require.Equal(t, protocol.TypeSnapshot, snap.Type)
	assert.JSONEq(t, `[]`, string(snap.Data))

	patient := dial(t, url)
	sendFrame(t, patient, protocol.TypeProducerJoin, map[string]any{"patientId": 101, "name": "Alice"})

	joined := readFrame(t, doctor)
	require.Equal(t, protocol.TypePresence, joined.Type)
	var p presenceFrame
	require.NoError(t, json.Unmarshal(joined.Data, &p))
	assert.Equal(t, domain.PresenceJoined, p.Kind)
	assert.Equal(t, "101", p.ProducerID)
	assert.Equal(t, "Alice", p.DisplayName)

	rec := env.get(t, "/api/health")
	assert.JSONEq(t, `{"status":"OK","doctors":1,"patients":1}`, rec.Body.String())

	rec = env.get(t, "/health/ready")
	var ready readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, 1, ready.Doctors)
	assert.Equal(t, 1, ready.Patients)
	assert.Equal(t, int64(2), ready.Websockets)

	rec = env.get(t, "/api/patients")
	var producers []domain.ProducerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &producers))
	require.Len(t, producers, 1)
	assert.Equal(t, "Alice", producers[0].DisplayName)

	sendFrame(t, patient, protocol.TypeReport, map[string]any{
		"patientId":   "101",
		"heartRate":   120,
		"oxygenLevel": 92,
		"temperature": 37.1,
	})

	vitals := readFrame(t, doctor)
	require.Equal(t, protocol.TypeMeasurement, vitals.Type)
	var m domain.MeasurementEvent
	require.NoError(t, json.Unmarshal(vitals.Data, &m))
	assert.Equal(t, "101", m.ProducerID)
	assert.Equal(t, 120, m.HeartRate)
	assert.Equal(t, []string{domain.AlertHighHeartRate, domain.AlertLowOxygen}, m.Alerts)

	require.NoError(t, patient.Close())

	left := readFrame(t, doctor)
	require.Equal(t, protocol.TypePresence, left.Type)
	require.NoError(t, json.Unmarshal(left.Data, &p))
	assert.Equal(t, domain.PresenceLeft, p.Kind)
	assert.Equal(t, "101", p.ProducerID)
}

func TestWebSocket_UploadNotifiesObservers(t *testing.T) {
	env := newTestEnv(t, nil)
	url := startHTTP(t, env)

	doctor := dial(t, url)
	sendFrame(t, doctor, protocol.TypeObserverJoin, nil)
	readFrame(t, doctor)

	rec := env.do(t, newUploadRequest(t, uploadForm{patientID: "7", fileName: "ecg.csv", content: []byte("1,2,3"), fileType: "ecg"}))
	require.Equal(t, http.StatusOK, rec.Code)

	f := readFrame(t, doctor)
	require.Equal(t, protocol.TypeFileAvailable, f.Type)
	var evt domain.FileEvent
	require.NoError(t, json.Unmarshal(f.Data, &evt))
	assert.Equal(t, "7", evt.ProducerID)
	assert.Equal(t, "ecg.csv", evt.FileName)
	assert.Equal(t, "ecg", evt.FileType)
	assert.Equal(t, "/uploads/Patient_7/1709283600000_ecg.csv", evt.FilePath)
}

func TestWebSocket_UploadResponseMatchesBroadcast(t *testing.T) {
	env := newTestEnvWithClock(t, clockwork.NewRealClock(), nil)
	url := startHTTP(t, env)

	doctor := dial(t, url)
	sendFrame(t, doctor, protocol.TypeObserverJoin, nil)
	readFrame(t, doctor)

	rec := env.do(t, newUploadRequest(t, uploadForm{patientID: "7", fileName: "ecg.csv", content: []byte("1,2,3"), description: "resting"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	f := readFrame(t, doctor)
	require.Equal(t, protocol.TypeFileAvailable, f.Type)
	var broadcast domain.FileEvent
	require.NoError(t, json.Unmarshal(f.Data, &broadcast))

	assert.Equal(t, broadcast, resp.File)
	assert.False(t, resp.File.UploadedAt.IsZero())
}

func TestWebSocket_ProtocolErrorKeepsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	url := startHTTP(t, env)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	f := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, f.Type)

	sendFrame(t, conn, protocol.TypeObserverJoin, nil)
	assert.Equal(t, protocol.TypeSnapshot, readFrame(t, conn).Type)
}

func TestWebSocket_PerIPLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxConnectionsPerIP = 1 })
	url := startHTTP(t, env)

	first := dial(t, url)
	sendFrame(t, first, protocol.TypeObserverJoin, nil)
	readFrame(t, first)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_ForeignOriginRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	url := startHTTP(t, env)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocket_TrackerStopClosesConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	url := startHTTP(t, env)

	conn := dial(t, url)
	sendFrame(t, conn, protocol.TypeObserverJoin, nil)
	readFrame(t, conn)

	env.tracker.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(frameWait)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
