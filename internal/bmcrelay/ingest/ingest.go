// Package ingest implements the Ingest Listener and Worker Lanes: an HTTP
// receiver that accepts pushed event payloads, dispatches them stickily by
// client IP to a fixed pool of lanes, and supervises lanes that die.
//
// Pipeline position:
//
//	POST /redfish, /slingshot  →  [Listener]  →  lane input channel  →  [Lane]  →  bus.Producer
//
// Each lane owns its own decode/classify/sample/dedup state; no state is
// shared across lanes, so none of it needs locking.
package ingest

import "net/http"

// Payload is the unit of work handed from the Listener to a Lane. A zero
// value with Shutdown set is the sentinel that tells a lane to drain and
// exit, forwarding the sentinel to the next lane in the chain.
type Payload struct {
	Path     string
	Headers  http.Header
	ClientIP string
	Body     []byte

	Shutdown bool
}

// Producer is the subset of bus.Producer a lane needs. Declared here,
// rather than importing the bus package directly, to keep ingest
// independent of the bus's schema-registry and transport concerns.
type Producer interface {
	Emit(topic string, key string, value any) error
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
