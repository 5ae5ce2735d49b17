package domain

import "time"

// ConnectionID identifies one live connection for the lifetime of the process.
type ConnectionID string

func (id ConnectionID) String() string { return string(id) }

type Role int

const (
	RoleUnclassified Role = iota
	RoleObserver
	RoleProducer
)

func (r Role) String() string {
	switch r {
	case RoleObserver:
		return "observer"
	case RoleProducer:
		return "producer"
	default:
		return "unclassified"
	}
}

// ProducerRecord is the identity a producer connection announced when it joined.
// It is never mutated after creation.
type ProducerRecord struct {
	ConnectionID ConnectionID `json:"connectionId"`
	ProducerID   string       `json:"patientId"`
	DisplayName  string       `json:"name"`
	ConnectedAt  time.Time    `json:"connectedAt"`
}

// Counts is a point-in-time view of registry membership.
type Counts struct {
	Observers    int `json:"doctors"`
	Producers    int `json:"patients"`
	Unclassified int `json:"unclassified"`
}
