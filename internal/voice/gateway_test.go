package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	v1 "aria/shared/contracts/voice/v1"

	"github.com/coder/websocket"
)

type stubVerifier struct {
	subjects map[string]string // access token -> subject id
}

func (s *stubVerifier) VerifyAccess(accessToken string, _ time.Time) (string, error) {
	if sub, ok := s.subjects[accessToken]; ok {
		return sub, nil
	}
	return "", errors.New("invalid token")
}

type stubCoordinator struct {
	result CommandResult
	err    error

	started chan struct{} // receives when Execute begins, when non-nil
	release chan struct{} // Execute blocks until closed or ctx done, when non-nil
	ctxErr  chan error    // receives ctx.Err() observed at Execute return, when non-nil

	gotText     []string
	gotSubjects []string
}

func (c *stubCoordinator) Execute(ctx context.Context, subjectID, text string, _ map[string]any) (CommandResult, error) {
	c.gotText = append(c.gotText, text)
	c.gotSubjects = append(c.gotSubjects, subjectID)
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
		}
	}
	if c.ctxErr != nil {
		c.ctxErr <- ctx.Err()
	}
	if c.err != nil {
		return CommandResult{}, c.err
	}
	return c.result, nil
}

type stubTranscriber struct {
	tr  Transcription
	err error

	gotAudio [][]byte
}

func (s *stubTranscriber) Transcribe(_ context.Context, audio []byte) (Transcription, error) {
	s.gotAudio = append(s.gotAudio, audio)
	if s.err != nil {
		return Transcription{}, s.err
	}
	return s.tr, nil
}

type stubSynthesizer struct {
	audio []byte
	err   error
}

func (s *stubSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type gatewayTestEnv struct {
	verifier    *stubVerifier
	coordinator *stubCoordinator
	stt         *stubTranscriber
	tts         *stubSynthesizer
	registry    *Registry
	server      *httptest.Server
}

func newGatewayTestEnv(t *testing.T) *gatewayTestEnv {
	t.Helper()
	t.Setenv("ARIA_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("ARIA_WS_SYNTHESIZE_RESPONSES", "false")

	env := &gatewayTestEnv{
		verifier: &stubVerifier{subjects: map[string]string{
			"tok-user-1": "user-1",
			"tok-user-2": "user-2",
		}},
		coordinator: &stubCoordinator{result: CommandResult{
			Success:   true,
			Response:  "It is sunny today.",
			Intent:    "weather.today",
			AgentUsed: "weather",
		}},
		stt: &stubTranscriber{tr: Transcription{Success: true, Text: "what is the weather"}},
		tts: &stubSynthesizer{audio: []byte("fake-audio")},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.registry = NewRegistry(log)
	gw := NewGateway(log, env.registry, env.verifier, env.coordinator, env.stt, env.tts)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	return env
}

func (e *gatewayTestEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(e.server.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      typ + "-1",
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return v1.Envelope{}
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func authenticate(t *testing.T, conn *websocket.Conn, token, wantSubject string) {
	t.Helper()

	sendEvent(t, conn, v1.TypeAuthenticate, v1.AuthenticatePayload{Token: token})

	env := readUntilType(t, conn, v1.TypeAuthenticated, 3)
	var p v1.AuthenticatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode authenticated: %v", err)
	}
	if p.UserID != wantSubject {
		t.Fatalf("expected userId=%q, got %q", wantSubject, p.UserID)
	}
}

func TestGateway_AuthenticateThenVoiceCommand(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceCommand, v1.VoiceCommandPayload{
		Text:      "what is the weather",
		SessionID: "sess-1",
	})

	_ = readUntilType(t, conn, v1.TypeVoiceProcessing, 3)

	resp := readUntilType(t, conn, v1.TypeVoiceResponse, 3)
	var p v1.VoiceResponsePayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		t.Fatalf("decode voice-response: %v", err)
	}
	if !p.Success || p.Response != "It is sunny today." {
		t.Fatalf("unexpected response payload: %+v", p)
	}
	if p.SessionID != "sess-1" {
		t.Fatalf("expected sessionId echoed, got %q", p.SessionID)
	}

	if len(env.coordinator.gotSubjects) != 1 || env.coordinator.gotSubjects[0] != "user-1" {
		t.Fatalf("expected coordinator call for user-1, got %v", env.coordinator.gotSubjects)
	}
}

func TestGateway_InvalidTokenThenRetrySucceeds(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, v1.TypeAuthenticate, v1.AuthenticatePayload{Token: "bogus"})

	errEnv := readUntilType(t, conn, v1.TypeAuthError, 3)
	var ep v1.AuthErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &ep); err != nil {
		t.Fatalf("decode auth-error: %v", err)
	}
	if ep.Error == "" {
		t.Fatalf("expected non-empty auth-error message")
	}

	// The connection survives a failed attempt; retry with a valid token.
	authenticate(t, conn, "tok-user-1", "user-1")
}

func TestGateway_SecondAuthenticateRejected(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeAuthenticate, v1.AuthenticatePayload{Token: "tok-user-2"})
	_ = readUntilType(t, conn, v1.TypeAuthError, 3)

	// Binding unchanged: status still reports the first subject.
	sendEvent(t, conn, v1.TypeGetStatus, nil)
	st := readUntilType(t, conn, v1.TypeStatus, 3)
	var sp v1.StatusPayload
	if err := json.Unmarshal(st.Payload, &sp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sp.UserID != "user-1" {
		t.Fatalf("expected status for user-1, got %q", sp.UserID)
	}
}

func TestGateway_CommandBeforeAuthRejected(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, v1.TypeVoiceCommand, v1.VoiceCommandPayload{Text: "hello"})

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 3)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeNotAuthenticated {
		t.Fatalf("expected code %q, got %q", codeNotAuthenticated, p.Code)
	}
	if len(env.coordinator.gotText) != 0 {
		t.Fatalf("coordinator must not be called before auth")
	}
}

func TestGateway_CoordinatorFailureSurfacedVerbatim(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.coordinator.err = errors.New("planner backend exploded")
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceCommand, v1.VoiceCommandPayload{Text: "do something"})

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 4)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeCommandFailed {
		t.Fatalf("expected code %q, got %q", codeCommandFailed, p.Code)
	}
	if p.Message != "planner backend exploded" {
		t.Fatalf("expected verbatim failure message, got %q", p.Message)
	}
}

func TestGateway_StreamLifecycleEndToEnd(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceStreamReady, 3)

	for i, chunk := range [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")} {
		sendEvent(t, conn, v1.TypeVoiceStreamChunk, v1.VoiceStreamChunkPayload{
			SessionID: "stream-1",
			Chunk:     chunk,
		})
		ack := readUntilType(t, conn, v1.TypeVoiceChunkReceived, 3)
		var ap v1.VoiceChunkReceivedPayload
		if err := json.Unmarshal(ack.Payload, &ap); err != nil {
			t.Fatalf("decode chunk ack: %v", err)
		}
		if ap.ChunkIndex != i {
			t.Fatalf("expected chunkIndex=%d, got %d", i, ap.ChunkIndex)
		}
	}

	sendEvent(t, conn, v1.TypeVoiceStreamEnd, v1.VoiceStreamEndPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceProcessing, 3)

	resp := readUntilType(t, conn, v1.TypeVoiceResponse, 4)
	var p v1.VoiceResponsePayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		t.Fatalf("decode voice-response: %v", err)
	}
	if p.Transcription != "what is the weather" {
		t.Fatalf("expected transcription in response, got %q", p.Transcription)
	}
	if p.SessionID != "stream-1" {
		t.Fatalf("expected sessionId echoed, got %q", p.SessionID)
	}

	if len(env.stt.gotAudio) != 1 || string(env.stt.gotAudio[0]) != "abcdef" {
		t.Fatalf("expected transcriber to receive reassembled audio %q, got %v", "abcdef", env.stt.gotAudio)
	}
	if len(env.coordinator.gotText) != 1 || env.coordinator.gotText[0] != "what is the weather" {
		t.Fatalf("expected coordinator to receive transcribed text, got %v", env.coordinator.gotText)
	}
}

func TestGateway_TranscriptionFailureShortCircuits(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.stt.err = errors.New("unintelligible audio")
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceStreamReady, 3)

	sendEvent(t, conn, v1.TypeVoiceStreamEnd, v1.VoiceStreamEndPayload{SessionID: "stream-1"})

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 4)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeTranscriptionFailed {
		t.Fatalf("expected code %q, got %q", codeTranscriptionFailed, p.Code)
	}
	if len(env.coordinator.gotText) != 0 {
		t.Fatalf("coordinator must not be called when transcription fails")
	}
}

func TestGateway_ChunkForUnknownStreamRejected(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamChunk, v1.VoiceStreamChunkPayload{
		SessionID: "stream-never-started",
		Chunk:     []byte("xx"),
	})

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 3)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeUnknownStream {
		t.Fatalf("expected code %q, got %q", codeUnknownStream, p.Code)
	}
}

func TestGateway_OversizedStreamChunkRejectedDistinctly(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceStreamReady, 3)

	// Pre-load the accounting to the limit so the next chunk overflows.
	env.registry.mu.RLock()
	st := env.registry.streams["stream-1"]
	env.registry.mu.RUnlock()
	st.mu.Lock()
	st.size = maxStreamBytes
	st.mu.Unlock()

	sendEvent(t, conn, v1.TypeVoiceStreamChunk, v1.VoiceStreamChunkPayload{
		SessionID: "stream-1",
		Chunk:     []byte("x"),
	})

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 3)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeStreamTooLarge {
		t.Fatalf("expected code %q, got %q", codeStreamTooLarge, p.Code)
	}

	// The stream itself is still open and can be finished.
	sendEvent(t, conn, v1.TypeVoiceStreamEnd, v1.VoiceStreamEndPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceProcessing, 3)
}

func TestGateway_DuplicateStreamRejected(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceStreamReady, 3)

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 3)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeDuplicateStream {
		t.Fatalf("expected code %q, got %q", codeDuplicateStream, p.Code)
	}
}

func TestGateway_PingPongEchoesData(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	// Ping needs no authentication.
	sendEvent(t, conn, v1.TypePing, v1.PingPayload{Data: "echo-me"})

	pong := readUntilType(t, conn, v1.TypePong, 3)
	var p v1.PongPayload
	if err := json.Unmarshal(pong.Payload, &p); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if p.Data != "echo-me" {
		t.Fatalf("expected ping data echoed, got %q", p.Data)
	}
	if p.Timestamp.IsZero() {
		t.Fatalf("expected server timestamp in pong")
	}
}

func TestGateway_GetStatusReportsActiveStreams(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	// Unauthenticated status requests get auth-error.
	sendEvent(t, conn, v1.TypeGetStatus, nil)
	_ = readUntilType(t, conn, v1.TypeAuthError, 3)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: "stream-1"})
	_ = readUntilType(t, conn, v1.TypeVoiceStreamReady, 3)

	sendEvent(t, conn, v1.TypeGetStatus, nil)
	st := readUntilType(t, conn, v1.TypeStatus, 3)
	var p v1.StatusPayload
	if err := json.Unmarshal(st.Payload, &p); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if p.UserID != "user-1" {
		t.Fatalf("expected userId=user-1, got %q", p.UserID)
	}
	if len(p.ActiveStreams) != 1 || p.ActiveStreams[0] != "stream-1" {
		t.Fatalf("expected activeStreams=[stream-1], got %v", p.ActiveStreams)
	}
	if p.ConnectedAt.IsZero() {
		t.Fatalf("expected connectedAt set")
	}
}

func TestGateway_UnknownEnvelopeTypeRejected(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	raw := `{"v":"v1","type":"make-coffee","id":"x-1"}`
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}

	errEnv := readUntilType(t, conn, v1.TypeVoiceError, 3)
	var p v1.VoiceErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode voice-error: %v", err)
	}
	if p.Code != codeBadPayload {
		t.Fatalf("expected code %q, got %q", codeBadPayload, p.Code)
	}
}

func TestGateway_DisconnectClosesConnection(t *testing.T) {
	env := newGatewayTestEnv(t)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeDisconnect, nil)

	// The server closes without a reply; the next read fails with a close status.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Until(deadline))
		_, _, err := conn.Read(ctx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !strings.Contains(err.Error(), "closed") && ctx.Err() != nil {
				t.Fatalf("expected server-initiated close, got %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection not closed after disconnect")
		}
	}
}

// Disconnect must interrupt an in-flight coordinator call, and the late
// result must never surface on the wire.
func TestGateway_DisconnectInterruptsInFlightCommand(t *testing.T) {
	env := newGatewayTestEnv(t)
	env.coordinator.started = make(chan struct{}, 1)
	env.coordinator.release = make(chan struct{})
	env.coordinator.ctxErr = make(chan error, 1)
	conn := env.dial(t)

	authenticate(t, conn, "tok-user-1", "user-1")

	sendEvent(t, conn, v1.TypeVoiceCommand, v1.VoiceCommandPayload{Text: "slow question"})
	_ = readUntilType(t, conn, v1.TypeVoiceProcessing, 3)

	select {
	case <-env.coordinator.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("coordinator call never started")
	}

	// Disconnect while the call is outstanding.
	sendEvent(t, conn, v1.TypeDisconnect, nil)

	var ctxErr error
	select {
	case ctxErr = <-env.coordinator.ctxErr:
	case <-time.After(5 * time.Second):
		t.Fatalf("coordinator call not interrupted by disconnect")
	}
	if ctxErr == nil {
		t.Fatalf("expected the in-flight call's context to be canceled")
	}

	// Drain until the server-side close: nothing left on the wire may be a
	// voice-response for the abandoned command.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Until(deadline))
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			break
		}
		var got v1.Envelope
		if jsonErr := json.Unmarshal(b, &got); jsonErr == nil && got.Type == v1.TypeVoiceResponse {
			t.Fatalf("late coordinator result must be discarded, got voice-response")
		}
	}
	close(env.coordinator.release)

	if len(env.coordinator.gotText) != 1 || env.coordinator.gotText[0] != "slow question" {
		t.Fatalf("expected exactly one coordinator call, got %v", env.coordinator.gotText)
	}
}

func TestGateway_EnqueueLogsDropWhenSendQueueFull(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	gw := NewGateway(log, NewRegistry(log), &stubVerifier{}, &stubCoordinator{}, &stubTranscriber{}, &stubSynthesizer{})

	client := NewClient("conn-test", 1)
	ctx := context.Background()

	if !gw.enqueue(ctx, client, newEnvelope(v1.TypePong, nil, time.Now().UTC())) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if gw.enqueue(ctx, client, newEnvelope(v1.TypePong, nil, time.Now().UTC())) {
		t.Fatalf("expected enqueue into a full queue to fail")
	}
	if !strings.Contains(buf.String(), "ws.send.drop") {
		t.Fatalf("expected the drop to be logged, got %q", buf.String())
	}
}

func TestGateway_OriginPolicyRejectsMissingOrigin(t *testing.T) {
	t.Setenv("ARIA_WS_ORIGIN_REQUIRED", "true")
	t.Setenv("ARIA_WS_ALLOWED_ORIGINS", "http://localhost")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := NewGateway(log, NewRegistry(log), &stubVerifier{}, &stubCoordinator{}, &stubTranscriber{}, &stubSynthesizer{})

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		t.Fatalf("expected handshake rejection without Origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 403, got status=%d err=%v", status, err)
	}
}
