// Package main provides a CI-friendly WebSocket smoke test for the Aria
// voice gateway.
//
// It validates:
//   - handshake + subprotocol selection
//   - authenticate -> authenticated binding
//   - ping -> pong echo
//   - voice-command -> voice-processing -> voice-response
//   - optional stream path: start/chunk/end with ordered chunk acks
//   - get-status reporting the bound subject
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "aria/shared/contracts/voice/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "aria.voice.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		token   = flag.String("token", "", "Access token for the authenticate event (required)")
		text    = flag.String("text", "hello aria", "Command text to send")
		stream  = flag.Bool("stream", false, "Also exercise the audio stream path")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*token) == "" {
		fatalf("-token is required (use /auth/login to obtain one)")
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *origin, *timeout)
	defer closeWS(c.conn)

	subjectID := mustAuthenticate(root, c, *token, *timeout)
	if *verbose {
		fmt.Printf("authenticated: subject=%s\n", subjectID)
	}

	mustPingPong(root, c, *timeout)

	mustCommand(root, c, *text, *timeout, *verbose)

	if *stream {
		streamID := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
		mustStream(root, c, streamID, *timeout, *verbose)
	}

	mustStatus(root, c, subjectID, *timeout)

	fmt.Printf("OK: subject=%s\n", subjectID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}

	assertSubprotocol(resp, defaultSubprotocol)
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, typ string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q", typ)
		case err := <-c.errCh:
			fatalf("read loop failed waiting for %q: %v", typ, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed waiting for %q", typ)
			}
			if env.Type == v1.TypeVoiceError && typ != v1.TypeVoiceError {
				var p v1.VoiceErrorPayload
				_ = json.Unmarshal(env.Payload, &p)
				fatalf("voice-error while waiting for %q: code=%s message=%s", typ, p.Code, p.Message)
			}
			if env.Type == typ {
				return env
			}
		}
	}
}

func (c *smokeClient) send(parent context.Context, typ string, payload any, stepTimeout time.Duration) {
	b, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal %q payload: %v", typ, err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("smoke-%s-%d", typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: b,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal %q envelope: %v", typ, err)
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, raw); err != nil {
		fatalf("write %q: %v", typ, err)
	}
}

func mustAuthenticate(parent context.Context, c *smokeClient, token string, stepTimeout time.Duration) string {
	c.send(parent, v1.TypeAuthenticate, v1.AuthenticatePayload{Token: token}, stepTimeout)

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for authenticated")
		case err := <-c.errCh:
			fatalf("read loop failed during authenticate: %v", err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed during authenticate")
			}
			switch env.Type {
			case v1.TypeAuthenticated:
				var p v1.AuthenticatedPayload
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					fatalf("unmarshal authenticated payload: %v", err)
				}
				if strings.TrimSpace(p.UserID) == "" {
					fatalf("authenticated missing userId")
				}
				return p.UserID
			case v1.TypeAuthError:
				var p v1.AuthErrorPayload
				_ = json.Unmarshal(env.Payload, &p)
				fatalf("auth-error: %s", p.Error)
			}
		}
	}
}

func mustPingPong(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	c.send(parent, v1.TypePing, v1.PingPayload{Data: "smoke"}, stepTimeout)

	env := c.mustReadUntilType(parent, v1.TypePong, stepTimeout)
	var p v1.PongPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal pong payload: %v", err)
	}
	if p.Data != "smoke" {
		fatalf("pong data mismatch: got=%q", p.Data)
	}
}

func mustCommand(parent context.Context, c *smokeClient, text string, stepTimeout time.Duration, verbose bool) {
	c.send(parent, v1.TypeVoiceCommand, v1.VoiceCommandPayload{Text: text}, stepTimeout)

	_ = c.mustReadUntilType(parent, v1.TypeVoiceProcessing, stepTimeout)

	env := c.mustReadUntilType(parent, v1.TypeVoiceResponse, stepTimeout)
	var p v1.VoiceResponsePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal voice-response payload: %v", err)
	}
	if !p.Success {
		fatalf("voice-response not successful: %q", p.Response)
	}
	if verbose {
		fmt.Printf("response: %q (agent=%s intent=%s)\n", p.Response, p.AgentUsed, p.Intent)
	}
}

// mustStream exercises the stream plumbing. Transcription may legitimately be
// unavailable on a dev instance, so a transcription_failed voice-error still
// counts as working plumbing.
func mustStream(parent context.Context, c *smokeClient, streamID string, stepTimeout time.Duration, verbose bool) {
	c.send(parent, v1.TypeVoiceStreamStart, v1.VoiceStreamStartPayload{SessionID: streamID}, stepTimeout)
	_ = c.mustReadUntilType(parent, v1.TypeVoiceStreamReady, stepTimeout)

	for i, chunk := range [][]byte{[]byte("smoke-"), []byte("audio")} {
		c.send(parent, v1.TypeVoiceStreamChunk, v1.VoiceStreamChunkPayload{SessionID: streamID, Chunk: chunk}, stepTimeout)
		env := c.mustReadUntilType(parent, v1.TypeVoiceChunkReceived, stepTimeout)
		var p v1.VoiceChunkReceivedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal chunk ack: %v", err)
		}
		if p.ChunkIndex != i {
			fatalf("chunk index mismatch: got=%d want=%d", p.ChunkIndex, i)
		}
	}

	c.send(parent, v1.TypeVoiceStreamEnd, v1.VoiceStreamEndPayload{SessionID: streamID}, stepTimeout)

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for stream outcome")
		case err := <-c.errCh:
			fatalf("read loop failed during stream: %v", err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed during stream")
			}
			switch env.Type {
			case v1.TypeVoiceResponse:
				if verbose {
					fmt.Printf("stream transcribed and executed\n")
				}
				return
			case v1.TypeVoiceError:
				var p v1.VoiceErrorPayload
				_ = json.Unmarshal(env.Payload, &p)
				if p.Code == "transcription_failed" {
					if verbose {
						fmt.Printf("stream plumbing OK (no transcriber configured)\n")
					}
					return
				}
				fatalf("stream failed: code=%s message=%s", p.Code, p.Message)
			}
		}
	}
}

func mustStatus(parent context.Context, c *smokeClient, subjectID string, stepTimeout time.Duration) {
	c.send(parent, v1.TypeGetStatus, nil, stepTimeout)

	env := c.mustReadUntilType(parent, v1.TypeStatus, stepTimeout)
	var p v1.StatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal status payload: %v", err)
	}
	if p.UserID != subjectID {
		fatalf("status subject mismatch: got=%q want=%q", p.UserID, subjectID)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
