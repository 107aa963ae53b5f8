// Package v1 defines the Aria voice session protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable; event names are the contract and must not change).
const (
	// TypeAuthenticate presents an access token for the connection (client -> server).
	TypeAuthenticate = "authenticate"
	// TypeAuthenticated confirms authentication (server -> client).
	TypeAuthenticated = "authenticated"
	// TypeAuthError reports an authentication failure (server -> client).
	TypeAuthError = "auth-error"

	// TypeVoiceCommand submits a text command (client -> server).
	TypeVoiceCommand = "voice-command"
	// TypeVoiceProcessing signals that a command is being processed (server -> client).
	TypeVoiceProcessing = "voice-processing"
	// TypeVoiceResponse carries the coordinator outcome (server -> client).
	TypeVoiceResponse = "voice-response"
	// TypeVoiceError reports a command or stream failure (server -> client).
	TypeVoiceError = "voice-error"

	// TypeVoiceStreamStart opens an audio stream (client -> server).
	TypeVoiceStreamStart = "voice-stream-start"
	// TypeVoiceStreamReady confirms the stream is accepting chunks (server -> client).
	TypeVoiceStreamReady = "voice-stream-ready"
	// TypeVoiceStreamChunk appends an audio chunk (client -> server).
	TypeVoiceStreamChunk = "voice-stream-chunk"
	// TypeVoiceChunkReceived acknowledges an appended chunk (server -> client).
	TypeVoiceChunkReceived = "voice-chunk-received"
	// TypeVoiceStreamEnd finalizes an audio stream (client -> server).
	TypeVoiceStreamEnd = "voice-stream-end"

	// TypeGetStatus requests connection status (client -> server).
	TypeGetStatus = "get-status"
	// TypeStatus reports connection status (server -> client).
	TypeStatus = "status"

	// TypePing is a liveness probe (client -> server).
	TypePing = "ping"
	// TypePong answers a ping (server -> client).
	TypePong = "pong"

	// TypeDisconnect requests connection teardown (client -> server, no reply).
	TypeDisconnect = "disconnect"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeAuthenticate,
		TypeAuthenticated,
		TypeAuthError,
		TypeVoiceCommand,
		TypeVoiceProcessing,
		TypeVoiceResponse,
		TypeVoiceError,
		TypeVoiceStreamStart,
		TypeVoiceStreamReady,
		TypeVoiceStreamChunk,
		TypeVoiceChunkReceived,
		TypeVoiceStreamEnd,
		TypeGetStatus,
		TypeStatus,
		TypePing,
		TypePong,
		TypeDisconnect:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// AuthenticatePayload carries the access token for the connection.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload confirms the authenticated subject.
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

// AuthErrorPayload reports why authentication failed.
type AuthErrorPayload struct {
	Error string `json:"error"`
}

// VoiceCommandPayload submits a text command for execution.
type VoiceCommandPayload struct {
	Text      string         `json:"text"`
	SessionID string         `json:"sessionId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VoiceProcessingPayload signals in-flight command processing.
type VoiceProcessingPayload struct {
	SessionID string `json:"sessionId,omitempty"`
}

// VoiceResponsePayload carries the coordinator outcome back to the client.
type VoiceResponsePayload struct {
	Success       bool     `json:"success"`
	Response      string   `json:"response"`
	Intent        string   `json:"intent,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	AgentUsed     string   `json:"agentUsed,omitempty"`
	ExecutionTime int64    `json:"executionTime,omitempty"`
	Actions       []string `json:"actions,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	Transcription string   `json:"transcription,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
	Audio         []byte   `json:"audio,omitempty"`
}

// VoiceErrorPayload reports a command/stream failure with a stable code.
type VoiceErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// VoiceStreamStartPayload opens an audio stream identified by sessionId.
type VoiceStreamStartPayload struct {
	SessionID string `json:"sessionId"`
}

// VoiceStreamReadyPayload confirms a stream is accepting chunks.
type VoiceStreamReadyPayload struct {
	SessionID string `json:"sessionId"`
}

// VoiceStreamChunkPayload appends an audio chunk (base64 on the wire).
type VoiceStreamChunkPayload struct {
	SessionID string `json:"sessionId"`
	Chunk     []byte `json:"chunk"`
}

// VoiceChunkReceivedPayload acknowledges a chunk with its append index.
type VoiceChunkReceivedPayload struct {
	SessionID  string `json:"sessionId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// VoiceStreamEndPayload finalizes an audio stream.
type VoiceStreamEndPayload struct {
	SessionID string `json:"sessionId"`
}

// StatusPayload reports the connection's authenticated state.
type StatusPayload struct {
	UserID        string    `json:"userId"`
	ConnectedAt   time.Time `json:"connectedAt"`
	ActiveStreams []string  `json:"activeStreams"`
}

// PingPayload is an optional opaque ping payload.
type PingPayload struct {
	Data string `json:"data,omitempty"`
}

// PongPayload echoes ping data with a server timestamp.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data,omitempty"`
}
