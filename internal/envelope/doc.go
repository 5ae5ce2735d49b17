// Package envelope wraps a single websocket connection.
//
// An Envelope owns the socket: one goroutine reads and decodes inbound frames,
// another drains a bounded outbound buffer and keeps the link alive with pings.
// Callers enqueue frames with Send, which never blocks. However the connection
// ends, the Handler's OnClose fires exactly once.
package envelope
