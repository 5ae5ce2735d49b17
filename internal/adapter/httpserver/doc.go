// Package httpserver is the echo front door: the websocket endpoint, the file
// upload bridge and listing, static file serving, health probes and metrics.
package httpserver
