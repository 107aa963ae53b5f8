package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrCapabilityUnavailable wraps transport-level failures of a capability
// backend so callers can distinguish "backend down" from "backend said no".
var ErrCapabilityUnavailable = errors.New("capability unavailable")

const (
	capDefaultTimeout  = 30 * time.Second
	capMaxResponseBody = 4 << 20 // 4 MiB, synthesized audio included
)

// HTTPCapabilityConfig configures one capability backend client.
type HTTPCapabilityConfig struct {
	BaseURL string
	Timeout time.Duration
}

func (c HTTPCapabilityConfig) normalize() (HTTPCapabilityConfig, error) {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return c, errors.New("capability base url is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = capDefaultTimeout
	}
	return c, nil
}

// HTTPCoordinator calls a coordinator backend over HTTP JSON.
//
// POST {base}/v1/commands
//
//	request:  {"userId": "...", "text": "...", "metadata": {...}}
//	response: CommandResult
type HTTPCoordinator struct {
	cfg    HTTPCapabilityConfig
	client *http.Client
}

// NewHTTPCoordinator constructs a coordinator client.
func NewHTTPCoordinator(cfg HTTPCapabilityConfig) (*HTTPCoordinator, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &HTTPCoordinator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type coordinatorRequest struct {
	UserID   string         `json:"userId"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Execute implements Coordinator.
func (c *HTTPCoordinator) Execute(ctx context.Context, subjectID, text string, metadata map[string]any) (CommandResult, error) {
	var out CommandResult
	err := postJSON(ctx, c.client, c.cfg.BaseURL+"/v1/commands", coordinatorRequest{
		UserID:   subjectID,
		Text:     text,
		Metadata: metadata,
	}, &out)
	if err != nil {
		return CommandResult{}, err
	}
	return out, nil
}

// HTTPTranscriber calls a speech-to-text backend over HTTP JSON.
//
// POST {base}/v1/transcriptions
//
//	request:  {"audio": "<base64>"}
//	response: Transcription
type HTTPTranscriber struct {
	cfg    HTTPCapabilityConfig
	client *http.Client
}

// NewHTTPTranscriber constructs a transcriber client.
func NewHTTPTranscriber(cfg HTTPCapabilityConfig) (*HTTPTranscriber, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &HTTPTranscriber{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type transcribeRequest struct {
	Audio []byte `json:"audio"`
}

// Transcribe implements Transcriber.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte) (Transcription, error) {
	var out Transcription
	err := postJSON(ctx, t.client, t.cfg.BaseURL+"/v1/transcriptions", transcribeRequest{Audio: audio}, &out)
	if err != nil {
		return Transcription{}, err
	}
	return out, nil
}

// HTTPSynthesizer calls a text-to-speech backend over HTTP JSON.
//
// POST {base}/v1/speech
//
//	request:  {"text": "..."}
//	response: {"audio": "<base64>"}
type HTTPSynthesizer struct {
	cfg    HTTPCapabilityConfig
	client *http.Client
}

// NewHTTPSynthesizer constructs a synthesizer client.
func NewHTTPSynthesizer(cfg HTTPCapabilityConfig) (*HTTPSynthesizer, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &HTTPSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

type synthesizeResponse struct {
	Audio []byte `json:"audio"`
}

// Synthesize implements Synthesizer.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var out synthesizeResponse
	err := postJSON(ctx, s.client, s.cfg.BaseURL+"/v1/speech", synthesizeRequest{Text: text}, &out)
	if err != nil {
		return nil, err
	}
	return out.Audio, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, capMaxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrCapabilityUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		if msg == "" {
			msg = resp.Status
		}
		return errors.New(msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
