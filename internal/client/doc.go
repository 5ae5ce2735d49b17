// Package client holds the websocket plumbing shared by the patient simulator
// and the doctor console: dialing with backoff, outbound frame builders and a
// random vitals generator.
package client
