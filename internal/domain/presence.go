package domain

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent is synthesized when a producer joins or its connection closes.
type PresenceEvent struct {
	Kind   PresenceKind
	Record ProducerRecord
}

func (PresenceEvent) EventName() string { return "presence" }

// Event is anything the fan-out router can deliver to observers.
type Event interface {
	EventName() string
}
