package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/wardwatch/internal/domain"
)

type presencePayload struct {
	Kind         domain.PresenceKind `json:"kind"`
	ProducerID   string              `json:"patientId"`
	DisplayName  string              `json:"name"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	ConnectedAt  time.Time           `json:"connectedAt"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(frameType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	out, err := json.Marshal(Frame{Type: frameType, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", frameType, err)
	}
	return out, nil
}

// EncodeEvent renders a broadcast event as an outbound frame.
func EncodeEvent(evt domain.Event) ([]byte, error) {
	switch e := evt.(type) {
	case domain.PresenceEvent:
		return encode(TypePresence, presencePayload{
			Kind:         e.Kind,
			ProducerID:   e.Record.ProducerID,
			DisplayName:  e.Record.DisplayName,
			ConnectionID: e.Record.ConnectionID,
			ConnectedAt:  e.Record.ConnectedAt,
		})
	case domain.MeasurementEvent:
		return encode(TypeMeasurement, e)
	case domain.FileEvent:
		return encode(TypeFileAvailable, e)
	default:
		return nil, fmt.Errorf("unsupported event type %T", evt)
	}
}

// EncodeSnapshot renders the producer list sent to a newly joined observer.
func EncodeSnapshot(records []domain.ProducerRecord) ([]byte, error) {
	if records == nil {
		records = []domain.ProducerRecord{}
	}
	return encode(TypeSnapshot, records)
}

// EncodeError renders a protocol error notice for the offending connection.
func EncodeError(code, message string) ([]byte, error) {
	return encode(TypeError, errorPayload{Code: code, Message: message})
}

// ErrorCode maps a decode or classification error to a short machine-readable code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return "missing_identity"
	case errors.Is(err, domain.ErrAlreadyClassified):
		return "already_joined"
	case errors.Is(err, domain.ErrNotProducer):
		return "not_producer"
	case errors.Is(err, domain.ErrProducerMismatch):
		return "producer_mismatch"
	case errors.Is(err, domain.ErrProtocolViolation):
		return "protocol_violation"
	default:
		return "internal"
	}
}
