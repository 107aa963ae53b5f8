package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	v1 "aria/shared/contracts/voice/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "aria.voice.v1"

	wsDefaultSendQueueSize  = 256
	wsMinSendQueueSize      = 32
	wsDefaultEventQueueSize = 64

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// AccessVerifier authenticates connections. Implemented by the token
// service; kept as an interface so gateway tests can stub it.
type AccessVerifier interface {
	VerifyAccess(accessToken string, now time.Time) (subjectID string, err error)
}

// Gateway is the WebSocket entrypoint for Aria voice sessions.
//
// It enforces origin policy, subprotocol selection, and heartbeats, and runs
// the per-connection protocol state machine:
//
//	Unauthenticated -> Authenticated -> Closed (terminal)
//
// with per-stream sub-states owned by the Registry. One worker goroutine per
// connection drains an ordered inbound queue, so events of one connection
// are serialized by construction while connections stay independent.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	tokens   AccessVerifier

	coordinator Coordinator
	stt         Transcriber
	tts         Synthesizer

	synthesizeResponses bool

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int
	eventQueueSize  int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// NewGateway constructs a gateway with secure defaults.
// When registry is nil, a fresh in-memory registry is used.
func NewGateway(log *slog.Logger, registry *Registry, tokens AccessVerifier, coordinator Coordinator, stt Transcriber, tts Synthesizer) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry(log)
	}

	g := &Gateway{
		log:         log,
		registry:    registry,
		tokens:      tokens,
		coordinator: coordinator,
		stt:         stt,
		tts:         tts,
	}

	g.synthesizeResponses = envBoolWS("ARIA_WS_SYNTHESIZE_RESPONSES", false)

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("ARIA_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("ARIA_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("ARIA_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("ARIA_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("ARIA_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("ARIA_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}
	g.eventQueueSize = envIntWS("ARIA_WS_EVENT_QUEUE", wsDefaultEventQueueSize)

	g.heartbeatEvery = envDurationWS("ARIA_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("ARIA_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// connState is the per-connection state machine, owned exclusively by the
// connection's worker goroutine. No lock needed.
type connState struct {
	connectionID  string
	subjectID     string
	authenticated bool
	connectedAt   time.Time
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the voice loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connectionID := NewConnectionID()
	client := NewClient(connectionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent and is the only path into the Closed state.
	// Registry cleanup discards partial streams without processing them.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.registry.Close(connectionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "connection_id", connectionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "connection_id", connectionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Ordered inbound queue: the read loop enqueues, the worker drains.
	// Events of one connection never overlap or reorder; while the worker
	// is suspended on a capability call the queue holds later events.
	events := make(chan v1.Envelope, g.eventQueueSize)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)

		st := &connState{connectionID: connectionID, connectedAt: time.Now().UTC()}
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-events:
				g.handleEvent(ctx, client, st, env)
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendVoiceError(ctx, client, codeBadPayload, "invalid JSON", "")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "connection_id", connectionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if err := env.Validate(); err != nil {
			g.trySendVoiceError(ctx, client, codeBadPayload, err.Error(), "")
			continue readLoop
		}

		wsEventsTotal.WithLabelValues(env.Type).Inc()

		// Disconnect bypasses the queue so it stays reachable even while the
		// worker is suspended on an outstanding capability call.
		if env.Type == v1.TypeDisconnect {
			shutdown(websocket.StatusNormalClosure, "client disconnect")
			break readLoop
		}

		select {
		case <-ctx.Done():
			break readLoop
		case events <- env:
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	<-workerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- event dispatch ----

func (g *Gateway) handleEvent(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	switch env.Type {
	case v1.TypeAuthenticate:
		g.onAuthenticate(ctx, client, st, env)

	case v1.TypePing:
		g.onPing(ctx, client, env)

	case v1.TypeGetStatus:
		g.onGetStatus(ctx, client, st)

	case v1.TypeVoiceCommand:
		g.onVoiceCommand(ctx, client, st, env)

	case v1.TypeVoiceStreamStart:
		g.onStreamStart(ctx, client, st, env)

	case v1.TypeVoiceStreamChunk:
		g.onStreamChunk(ctx, client, st, env)

	case v1.TypeVoiceStreamEnd:
		g.onStreamEnd(ctx, client, st, env)

	default:
		// Server-to-client types echoed back, or anything else.
		g.trySendVoiceError(ctx, client, codeUnsupportedEvent, "unsupported event: "+env.Type, "")
	}
}

func (g *Gateway) onAuthenticate(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	if st.authenticated {
		// Idempotency policy: reject, never overwrite the bound subject.
		g.trySendAuthError(ctx, client, "already authenticated")
		return
	}

	var p v1.AuthenticatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || strings.TrimSpace(p.Token) == "" {
		g.trySendAuthError(ctx, client, "missing token")
		return
	}

	now := time.Now().UTC()
	subjectID, err := g.tokens.VerifyAccess(p.Token, now)
	if err != nil {
		// Never reveal whether a subject exists.
		g.trySendAuthError(ctx, client, "authentication failed")
		return
	}

	if _, err := g.registry.Open(st.connectionID, subjectID, now); err != nil {
		g.trySendAuthError(ctx, client, "already authenticated")
		return
	}

	st.authenticated = true
	st.subjectID = subjectID
	st.connectedAt = now

	g.enqueueEvent(ctx, client, v1.TypeAuthenticated, v1.AuthenticatedPayload{UserID: subjectID})
}

func (g *Gateway) onPing(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.PingPayload
	if len(env.Payload) > 0 {
		_ = json.Unmarshal(env.Payload, &p)
	}
	g.enqueueEvent(ctx, client, v1.TypePong, v1.PongPayload{
		Timestamp: time.Now().UTC(),
		Data:      p.Data,
	})
}

func (g *Gateway) onGetStatus(ctx context.Context, client *Client, st *connState) {
	if !st.authenticated {
		g.trySendAuthError(ctx, client, "not authenticated")
		return
	}
	g.enqueueEvent(ctx, client, v1.TypeStatus, v1.StatusPayload{
		UserID:        st.subjectID,
		ConnectedAt:   st.connectedAt,
		ActiveStreams: g.registry.ActiveStreams(st.connectionID),
	})
}

func (g *Gateway) onVoiceCommand(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	if !st.authenticated {
		g.trySendVoiceError(ctx, client, codeNotAuthenticated, "authenticate first", "")
		return
	}

	var p v1.VoiceCommandPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendVoiceError(ctx, client, codeBadPayload, "invalid payload", "")
		return
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		g.trySendVoiceError(ctx, client, codeBadPayload, "missing text", p.SessionID)
		return
	}
	if len([]rune(text)) > maxCommandChars {
		g.trySendVoiceError(ctx, client, codeBadPayload, "command too long", p.SessionID)
		return
	}

	g.enqueueEvent(ctx, client, v1.TypeVoiceProcessing, v1.VoiceProcessingPayload{SessionID: p.SessionID})

	g.executeCommand(ctx, client, st, text, p.Metadata, "", p.SessionID)
}

func (g *Gateway) onStreamStart(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	var p v1.VoiceStreamStartPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || strings.TrimSpace(p.SessionID) == "" {
		g.trySendVoiceError(ctx, client, codeBadPayload, "missing sessionId", "")
		return
	}

	if _, err := g.registry.StartStream(p.SessionID, st.connectionID, time.Now().UTC()); err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated):
			g.trySendVoiceError(ctx, client, codeNotAuthenticated, "authenticate first", p.SessionID)
		case errors.Is(err, ErrDuplicateStream):
			g.trySendVoiceError(ctx, client, codeDuplicateStream, "stream already open", p.SessionID)
		default:
			g.trySendVoiceError(ctx, client, codeBadPayload, err.Error(), p.SessionID)
		}
		return
	}

	g.enqueueEvent(ctx, client, v1.TypeVoiceStreamReady, v1.VoiceStreamReadyPayload{SessionID: p.SessionID})
}

func (g *Gateway) onStreamChunk(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	var p v1.VoiceStreamChunkPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || strings.TrimSpace(p.SessionID) == "" {
		g.trySendVoiceError(ctx, client, codeBadPayload, "missing sessionId", "")
		return
	}

	idx, err := g.registry.AppendChunk(p.SessionID, p.Chunk)
	if err != nil {
		if errors.Is(err, ErrStreamTooLarge) {
			g.trySendVoiceError(ctx, client, codeStreamTooLarge, "stream exceeds the allowed size", p.SessionID)
			return
		}
		g.trySendVoiceError(ctx, client, codeUnknownStream, "unknown stream", p.SessionID)
		return
	}

	g.enqueueEvent(ctx, client, v1.TypeVoiceChunkReceived, v1.VoiceChunkReceivedPayload{
		SessionID:  p.SessionID,
		ChunkIndex: idx,
	})
}

func (g *Gateway) onStreamEnd(ctx context.Context, client *Client, st *connState, env v1.Envelope) {
	var p v1.VoiceStreamEndPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || strings.TrimSpace(p.SessionID) == "" {
		g.trySendVoiceError(ctx, client, codeBadPayload, "missing sessionId", "")
		return
	}

	audio, err := g.registry.FinishStream(p.SessionID)
	if err != nil {
		g.trySendVoiceError(ctx, client, codeUnknownStream, "unknown stream", p.SessionID)
		return
	}

	g.enqueueEvent(ctx, client, v1.TypeVoiceProcessing, v1.VoiceProcessingPayload{SessionID: p.SessionID})

	tr, err := g.stt.Transcribe(ctx, audio)
	if ctx.Err() != nil {
		// Connection closed while transcribing: discard silently.
		return
	}
	if err != nil || !tr.Success {
		msg := "transcription failed"
		if err != nil {
			msg = err.Error()
		}
		g.trySendVoiceError(ctx, client, codeTranscriptionFailed, msg, p.SessionID)
		return
	}

	g.executeCommand(ctx, client, st, tr.Text, nil, tr.Text, p.SessionID)
}

// executeCommand invokes the coordinator and emits the outcome.
// A result arriving after the connection closed is discarded silently.
func (g *Gateway) executeCommand(ctx context.Context, client *Client, st *connState, text string, metadata map[string]any, transcription, sessionID string) {
	res, err := g.coordinator.Execute(ctx, st.subjectID, text, metadata)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		wsCommandsTotal.WithLabelValues("error").Inc()
		// Coordinator failure surfaced verbatim as message text.
		g.trySendVoiceError(ctx, client, codeCommandFailed, err.Error(), sessionID)
		return
	}
	wsCommandsTotal.WithLabelValues("ok").Inc()

	out := v1.VoiceResponsePayload{
		Success:       res.Success,
		Response:      res.Response,
		Intent:        res.Intent,
		Confidence:    res.Confidence,
		AgentUsed:     res.AgentUsed,
		ExecutionTime: res.ExecutionTime,
		Actions:       res.Actions,
		Suggestions:   res.Suggestions,
		Transcription: transcription,
		SessionID:     sessionID,
	}

	if g.tts != nil && g.synthesizeResponses && res.Success && res.Response != "" {
		audio, synthErr := g.tts.Synthesize(ctx, res.Response)
		if ctx.Err() != nil {
			return
		}
		if synthErr != nil {
			g.log.Warn("ws.synthesize.fail", "connection_id", st.connectionID, "err", synthErr)
		} else {
			out.Audio = audio
		}
	}

	g.enqueueEvent(ctx, client, v1.TypeVoiceResponse, out)
}

// ---- send helpers ----

func (g *Gateway) trySendAuthError(ctx context.Context, client *Client, msg string) {
	g.enqueueEvent(ctx, client, v1.TypeAuthError, v1.AuthErrorPayload{Error: msg})
}

func (g *Gateway) trySendVoiceError(ctx context.Context, client *Client, code, msg, sessionID string) {
	g.enqueueEvent(ctx, client, v1.TypeVoiceError, v1.VoiceErrorPayload{
		Code:      code,
		Message:   msg,
		SessionID: sessionID,
	})
}

func (g *Gateway) enqueueEvent(ctx context.Context, client *Client, typ string, payload any) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		g.log.Error("ws.marshal.fail", "type", typ, "err", err)
		return false
	}
	return g.enqueue(ctx, client, newEnvelope(typ, b, time.Now().UTC()))
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		// Queue full: the writer is not keeping up, shed the event.
		g.log.Warn("ws.send.drop", "type", env.Type, "connection_id", client.ConnectionID)
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, errors.New("unsupported message type")
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
