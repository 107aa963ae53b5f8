package voice

import "errors"

var (
	// ErrAlreadyAuthenticated is returned when a connection authenticates twice.
	// The later attempt is rejected, never silently overwritten.
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")

	// ErrNotAuthenticated is returned when a stream is opened on a connection
	// without a session.
	ErrNotAuthenticated = errors.New("connection not authenticated")

	// ErrDuplicateStream is returned when a stream id is already in use.
	ErrDuplicateStream = errors.New("duplicate stream")

	// ErrUnknownStream is returned for appends/finishes on a stream that does
	// not exist or was already consumed.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrStreamTooLarge is returned when an append would push a live stream
	// over the byte limit. The stream itself stays open.
	ErrStreamTooLarge = errors.New("stream too large")
)

// Stable machine-readable error codes carried in voice-error payloads.
const (
	codeNotAuthenticated    = "not_authenticated"
	codeDuplicateStream     = "duplicate_stream"
	codeUnknownStream       = "unknown_stream"
	codeStreamTooLarge      = "stream_too_large"
	codeBadPayload          = "bad_payload"
	codeCommandFailed       = "command_failed"
	codeTranscriptionFailed = "transcription_failed"
	codeUnsupportedEvent    = "unsupported_event"
)
