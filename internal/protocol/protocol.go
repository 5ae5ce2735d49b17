package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pscheid92/wardwatch/internal/domain"
)

// Inbound message types. The second name of each pair is accepted as an alias.
const (
	TypeProducerJoin      = "patient-join"
	TypeProducerJoinAlias = "join-as-producer"
	TypeObserverJoin      = "doctor-join"
	TypeObserverJoinAlias = "join-as-observer"
	TypeReport            = "send-vitals"
	TypeReportAlias       = "report-measurement"
	TypeFileNotice        = "file-uploaded"
)

// Outbound message types.
const (
	TypeSnapshot      = "patients-list"
	TypePresence      = "presence-changed"
	TypeMeasurement   = "vitals-update"
	TypeFileAvailable = "file-received"
	TypeError         = "error"
)

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a decoded inbound frame.
type Message interface{ isMessage() }

type baseMessage struct{}

func (baseMessage) isMessage() {}

type ProducerJoin struct {
	baseMessage
	ProducerID  string
	DisplayName string
}

type ObserverJoin struct {
	baseMessage
}

type Report struct {
	baseMessage
	ProducerID string
	Reading    domain.Reading
	Timestamp  time.Time
}

type FileNotice struct {
	baseMessage
	Event domain.FileEvent
}

// flexString accepts both JSON strings and numbers; older patient
// clients sent numeric ids.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

type joinPayload struct {
	PatientID flexString `json:"patientId"`
	Name      string     `json:"name"`
}

type reportPayload struct {
	PatientID   flexString `json:"patientId"`
	HeartRate   *int       `json:"heartRate"`
	OxygenLevel *int       `json:"oxygenLevel"`
	Temperature *float64   `json:"temperature"`
	Note        *string    `json:"note"`
	Symptoms    *string    `json:"symptoms"`
	Message     *string    `json:"message"`
	Timestamp   *time.Time `json:"timestamp"`
}

type filePayload struct {
	PatientID     flexString `json:"patientId"`
	FileName      string     `json:"fileName"`
	SavedFileName string     `json:"savedFileName"`
	FileSize      int64      `json:"fileSize"`
	FileType      string     `json:"fileType"`
	Description   string     `json:"description"`
	FilePath      string     `json:"filePath"`
	UploadedAt    *time.Time `json:"uploadedAt"`
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// Decode parses one inbound frame. Every error wraps domain.ErrProtocolViolation.
func Decode(raw []byte) (Message, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, violation("malformed frame: %v", err)
	}

	switch f.Type {
	case TypeProducerJoin, TypeProducerJoinAlias:
		return decodeProducerJoin(f.Data)
	case TypeObserverJoin, TypeObserverJoinAlias:
		return ObserverJoin{}, nil
	case TypeReport, TypeReportAlias:
		return decodeReport(f.Data)
	case TypeFileNotice:
		return decodeFileNotice(f.Data)
	case "":
		return nil, violation("missing frame type")
	default:
		return nil, violation("unknown frame type %q", f.Type)
	}
}

func decodeProducerJoin(data json.RawMessage) (Message, error) {
	var p joinPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, violation("malformed join payload: %v", err)
		}
	}
	id := strings.TrimSpace(string(p.PatientID))
	name := strings.TrimSpace(p.Name)
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrProtocolViolation, domain.ErrMissingIdentity)
	}
	return ProducerJoin{ProducerID: id, DisplayName: name}, nil
}

func decodeReport(data json.RawMessage) (Message, error) {
	var p reportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, violation("malformed vitals payload: %v", err)
	}
	if p.HeartRate == nil || p.OxygenLevel == nil || p.Temperature == nil {
		return nil, violation("vitals payload requires heartRate, oxygenLevel and temperature")
	}

	note := p.Note
	if note == nil {
		note = p.Symptoms
	}
	if note == nil {
		note = p.Message
	}

	msg := Report{
		ProducerID: strings.TrimSpace(string(p.PatientID)),
		Reading: domain.Reading{
			HeartRate:   *p.HeartRate,
			OxygenLevel: *p.OxygenLevel,
			Temperature: *p.Temperature,
			Note:        note,
		},
	}
	if p.Timestamp != nil {
		msg.Timestamp = p.Timestamp.UTC()
	}
	return msg, nil
}

func decodeFileNotice(data json.RawMessage) (Message, error) {
	var p filePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, violation("malformed file payload: %v", err)
	}
	if p.FileName == "" {
		return nil, violation("file payload requires fileName")
	}
	evt := domain.FileEvent{
		ProducerID:    strings.TrimSpace(string(p.PatientID)),
		FileName:      p.FileName,
		SavedFileName: p.SavedFileName,
		FileSize:      p.FileSize,
		FileType:      p.FileType,
		Description:   p.Description,
		FilePath:      p.FilePath,
	}
	if p.UploadedAt != nil {
		evt.UploadedAt = p.UploadedAt.UTC()
	}
	return FileNotice{Event: evt}, nil
}
