package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ProducerJoin(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantID   string
		wantName string
	}{
		{"string id", `{"type":"patient-join","data":{"patientId":"101","name":"Ann"}}`, "101", "Ann"},
		{"numeric id", `{"type":"patient-join","data":{"patientId":101,"name":"Ann"}}`, "101", "Ann"},
		{"alias", `{"type":"join-as-producer","data":{"patientId":"7","name":" Bob "}}`, "7", "Bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			join, ok := msg.(ProducerJoin)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, join.ProducerID)
			assert.Equal(t, tt.wantName, join.DisplayName)
		})
	}
}

func TestDecode_ProducerJoinMissingIdentity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no data", `{"type":"patient-join"}`},
		{"missing name", `{"type":"patient-join","data":{"patientId":"101"}}`},
		{"missing id", `{"type":"patient-join","data":{"name":"Ann"}}`},
		{"blank name", `{"type":"patient-join","data":{"patientId":"101","name":"  "}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrProtocolViolation)
			assert.ErrorIs(t, err, domain.ErrMissingIdentity)
			assert.Equal(t, "missing_identity", ErrorCode(err))
		})
	}
}

func TestDecode_ObserverJoin(t *testing.T) {
	for _, raw := range []string{`{"type":"doctor-join"}`, `{"type":"join-as-observer","data":{}}`} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.IsType(t, ObserverJoin{}, msg)
	}
}

func TestDecode_Report(t *testing.T) {
	raw := `{"type":"send-vitals","data":{"patientId":"101","heartRate":72,"oxygenLevel":98,"temperature":36.6,"symptoms":"headache","timestamp":"2024-03-01T10:00:00+01:00"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	report, ok := msg.(Report)
	require.True(t, ok)
	assert.Equal(t, "101", report.ProducerID)
	assert.Equal(t, 72, report.Reading.HeartRate)
	assert.Equal(t, 98, report.Reading.OxygenLevel)
	assert.InDelta(t, 36.6, report.Reading.Temperature, 1e-9)
	require.NotNil(t, report.Reading.Note)
	assert.Equal(t, "headache", *report.Reading.Note)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), report.Timestamp)
}

func TestDecode_ReportNotePrecedence(t *testing.T) {
	raw := `{"type":"send-vitals","data":{"heartRate":1,"oxygenLevel":2,"temperature":3,"note":"n","message":"m"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	report := msg.(Report)
	assert.Equal(t, "n", *report.Reading.Note)
	assert.True(t, report.Timestamp.IsZero())
}

func TestDecode_ReportIncomplete(t *testing.T) {
	_, err := Decode([]byte(`{"type":"send-vitals","data":{"heartRate":72}}`))
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
}

func TestDecode_FileNotice(t *testing.T) {
	raw := `{"type":"file-uploaded","data":{"patientId":"101","fileName":"xray.png","savedFileName":"1700000000000_xray.png","fileSize":2048,"fileType":"image","description":"chest","filePath":"/uploads/Patient_101/1700000000000_xray.png"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	notice, ok := msg.(FileNotice)
	require.True(t, ok)
	assert.Equal(t, "101", notice.Event.ProducerID)
	assert.Equal(t, int64(2048), notice.Event.FileSize)
	assert.Equal(t, "image", notice.Event.FileType)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"missing type", `{"data":{}}`},
		{"unknown type", `{"type":"nurse-join"}`},
		{"file without name", `{"type":"file-uploaded","data":{"patientId":"1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, domain.ErrProtocolViolation)
			assert.Equal(t, "protocol_violation", ErrorCode(err))
		})
	}
}

func TestEncodeEvent_Presence(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	evt := domain.PresenceEvent{
		Kind:   domain.PresenceLeft,
		Record: domain.ProducerRecord{ConnectionID: "c-1", ProducerID: "101", DisplayName: "Ann", ConnectedAt: at},
	}

	out, err := EncodeEvent(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"presence-changed","data":{"kind":"left","patientId":"101","name":"Ann","connectionId":"c-1","connectedAt":"2024-03-01T09:00:00Z"}}`, string(out))
}

func TestEncodeEvent_Measurement(t *testing.T) {
	evt := domain.MeasurementEvent{
		ProducerID: "101",
		Reading:    domain.Reading{HeartRate: 120, OxygenLevel: 98, Temperature: 36.6},
		Timestamp:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Alerts:     []string{domain.AlertHighHeartRate},
	}

	out, err := EncodeEvent(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"vitals-update","data":{"patientId":"101","heartRate":120,"oxygenLevel":98,"temperature":36.6,"timestamp":"2024-03-01T09:00:00Z","alerts":["high_heart_rate"]}}`, string(out))
}

func TestEncodeSnapshot_EmptyIsArray(t *testing.T) {
	out, err := EncodeSnapshot(nil)
	require.NoError(t, err)

	var f struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &f))
	assert.Equal(t, TypeSnapshot, f.Type)
	assert.JSONEq(t, `[]`, string(f.Data))
}

func TestEncodeError(t *testing.T) {
	out, err := EncodeError("already_joined", "connection already classified")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"code":"already_joined","message":"connection already classified"}}`, string(out))
}
