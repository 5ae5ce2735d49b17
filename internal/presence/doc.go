// Package presence runs the per-connection state machine.
//
// A Tracker is an actor: a single goroutine consumes commands from a channel
// and is the only writer of the registry and the only caller of the fan-out
// router. Because classification, removal and broadcast happen in one step of
// that goroutine, a newly joined observer's snapshot and the presence events it
// receives afterwards never overlap or leave a gap.
package presence
