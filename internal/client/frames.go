package client

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/protocol"
)

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func marshal(frameType string, data any) ([]byte, error) {
	b, err := json.Marshal(outbound{Type: frameType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", frameType, err)
	}
	return b, nil
}

func ObserverJoinFrame() ([]byte, error) {
	return marshal(protocol.TypeObserverJoin, nil)
}

func ProducerJoinFrame(producerID, name string) ([]byte, error) {
	return marshal(protocol.TypeProducerJoin, map[string]string{
		"patientId": producerID,
		"name":      name,
	})
}

// ReportFrame leaves the timestamp off so the server stamps it on receipt.
func ReportFrame(producerID string, r domain.Reading) ([]byte, error) {
	return marshal(protocol.TypeReport, struct {
		PatientID string `json:"patientId"`
		domain.Reading
	}{PatientID: producerID, Reading: r})
}
