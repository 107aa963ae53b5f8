package voice

import "context"

// CommandResult is the coordinator's outcome for one executed command.
type CommandResult struct {
	Success       bool     `json:"success"`
	Response      string   `json:"response"`
	Intent        string   `json:"intent,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	AgentUsed     string   `json:"agentUsed,omitempty"`
	ExecutionTime int64    `json:"executionTime,omitempty"`
	Actions       []string `json:"actions,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

// Coordinator interprets and executes a user command.
// It is an external collaborator; the gateway imposes no timeout of its own
// and stays responsive to disconnect while a call is outstanding.
type Coordinator interface {
	Execute(ctx context.Context, subjectID, text string, metadata map[string]any) (CommandResult, error)
}

// Transcription is the speech-to-text outcome for one assembled stream.
type Transcription struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcriber converts assembled audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcription, error)
}

// Synthesizer converts response text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
