package app

import (
	"context"
	"errors"
	"fmt"

	"aria/internal/voice"
)

// Local fallbacks for capability backends. They keep a dev instance usable
// without any external services: commands echo, transcription is refused.

type localEchoCoordinator struct{}

func (localEchoCoordinator) Execute(_ context.Context, _ string, text string, _ map[string]any) (voice.CommandResult, error) {
	return voice.CommandResult{
		Success:   true,
		Response:  fmt.Sprintf("You said: %s", text),
		Intent:    "echo",
		AgentUsed: "local-echo",
	}, nil
}

type unavailableTranscriber struct{}

func (unavailableTranscriber) Transcribe(context.Context, []byte) (voice.Transcription, error) {
	return voice.Transcription{}, errors.New("no transcriber configured")
}

// newCapabilities wires the coordinator/transcriber/synthesizer backends.
// The synthesizer may be nil; the gateway then skips audio synthesis.
func newCapabilities(cfg Config, log Logger) (voice.Coordinator, voice.Transcriber, voice.Synthesizer, error) {
	var (
		coordinator voice.Coordinator = localEchoCoordinator{}
		stt         voice.Transcriber = unavailableTranscriber{}
		tts         voice.Synthesizer
	)

	if cfg.CoordinatorURL != "" {
		c, err := voice.NewHTTPCoordinator(voice.HTTPCapabilityConfig{
			BaseURL: cfg.CoordinatorURL,
			Timeout: cfg.CapabilityTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		coordinator = c
	} else {
		log.Info("capabilities.coordinator.local_echo")
	}

	if cfg.TranscriberURL != "" {
		s, err := voice.NewHTTPTranscriber(voice.HTTPCapabilityConfig{
			BaseURL: cfg.TranscriberURL,
			Timeout: cfg.CapabilityTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		stt = s
	} else {
		log.Info("capabilities.transcriber.disabled")
	}

	if cfg.SynthesizerURL != "" {
		s, err := voice.NewHTTPSynthesizer(voice.HTTPCapabilityConfig{
			BaseURL: cfg.SynthesizerURL,
			Timeout: cfg.CapabilityTimeout,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		tts = s
	}

	return coordinator, stt, tts, nil
}
