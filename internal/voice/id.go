package voice

import "github.com/oklog/ulid/v2"

// NewConnectionID returns a ULID used as the server-side connection id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewConnectionID() string {
	return ulid.Make().String()
}

// NewEnvelopeID returns a ULID used as outbound envelope id.
func NewEnvelopeID() string {
	return ulid.Make().String()
}
