// Package protocol implements the JSON frame codec spoken over the websocket.
//
// Every frame is {"type": ..., "data": ...}. Inbound frames are decoded and validated
// here, so the presence tracker only ever sees well-formed messages.
package protocol
