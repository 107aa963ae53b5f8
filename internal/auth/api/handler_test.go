package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aria/internal/auth/session"
	"aria/internal/identity"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestHandler(t *testing.T, mutate func(*Config)) (*Handler, *httptest.Server) {
	t.Helper()

	// Cheap argon2 for tests.
	t.Setenv("ARIA_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("ARIA_ARGON2_ITERATIONS", "1")
	t.Setenv("ARIA_ARGON2_PARALLELISM", "1")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	secret := paseto.NewV4AsymmetricSecretKey()
	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = secret.ExportHex()

	codec, err := session.NewPasetoV4PublicCodec(sessCfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicCodec: %v", err)
	}
	store := session.NewTokenStore(log, session.NewMemoryStore(), session.NewMemoryCache())
	tokens := session.NewService(sessCfg, log, codec, store)

	cfg := LoadConfigFromEnv()
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := NewHandler(log, cfg, identity.NewMemoryStore(), tokens)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return h, ts
}

func postJSONReq(t *testing.T, ts *httptest.Server, path string, body any, bearer string) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, ts.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("http.Do: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func registerUser(t *testing.T, ts *httptest.Server, username, password string) loginResponse {
	t.Helper()

	resp := postJSONReq(t, ts, "/auth/register", registerRequest{Username: username, Password: password}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	return decodeBody[loginResponse](t, resp)
}

func TestHandler_RegisterLoginRefreshFlow(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	reg := registerUser(t, ts, "ada", "correct horse battery")
	if reg.User.Username != "ada" {
		t.Fatalf("expected username ada, got %q", reg.User.Username)
	}
	if reg.Tokens.AccessToken == "" || reg.Tokens.RefreshToken == "" {
		t.Fatalf("expected token pair in register response")
	}

	// Login with the same credentials.
	resp := postJSONReq(t, ts, "/auth/login", loginRequest{Username: "Ada", Password: "correct horse battery"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	login := decodeBody[loginResponse](t, resp)
	if login.User.ID != reg.User.ID {
		t.Fatalf("login user mismatch")
	}

	// Rotate the refresh token.
	resp = postJSONReq(t, ts, "/auth/refresh", refreshRequest{RefreshToken: login.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	refreshed := decodeBody[refreshResponse](t, resp)
	if refreshed.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatalf("expected a new refresh token after rotation")
	}

	// The old refresh token is single-use.
	resp = postJSONReq(t, ts, "/auth/refresh", refreshRequest{RefreshToken: login.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh: expected 401, got %d", resp.StatusCode)
	}
	errBody := decodeBody[errorResponse](t, resp)
	if errBody.Error.Code != "token_revoked" {
		t.Fatalf("expected code token_revoked, got %q", errBody.Error.Code)
	}
}

func TestHandler_LoginRejectsBadCredentials(t *testing.T) {
	_, ts := newTestHandler(t, nil)
	registerUser(t, ts, "ada", "correct horse battery")

	// Wrong password and unknown user produce the same generic rejection.
	for _, req := range []loginRequest{
		{Username: "ada", Password: "wrong password!"},
		{Username: "nobody", Password: "whatever password"},
	} {
		resp := postJSONReq(t, ts, "/auth/login", req, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %q, got %d", req.Username, resp.StatusCode)
		}
		errBody := decodeBody[errorResponse](t, resp)
		if errBody.Error.Code != "invalid_credentials" {
			t.Fatalf("expected invalid_credentials, got %q", errBody.Error.Code)
		}
	}
}

func TestHandler_RegisterValidation(t *testing.T) {
	_, ts := newTestHandler(t, nil)

	resp := postJSONReq(t, ts, "/auth/register", registerRequest{Username: "x", Password: "long enough password"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short username: expected 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSONReq(t, ts, "/auth/register", registerRequest{Username: "ada", Password: "short"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", resp.StatusCode)
	}
	errBody := decodeBody[errorResponse](t, resp)
	if errBody.Error.Code != "weak_password" {
		t.Fatalf("expected weak_password, got %q", errBody.Error.Code)
	}

	registerUser(t, ts, "ada", "correct horse battery")
	resp = postJSONReq(t, ts, "/auth/register", registerRequest{Username: "ADA", Password: "correct horse battery"}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestHandler_RegistrationDisabled(t *testing.T) {
	_, ts := newTestHandler(t, func(c *Config) { c.AllowRegistration = false })

	resp := postJSONReq(t, ts, "/auth/register", registerRequest{Username: "ada", Password: "long enough password"}, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestHandler_LogoutRevokesToken(t *testing.T) {
	_, ts := newTestHandler(t, nil)
	reg := registerUser(t, ts, "ada", "correct horse battery")

	resp := postJSONReq(t, ts, "/auth/logout", logoutRequest{RefreshToken: reg.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Logout is idempotent from the client's perspective.
	resp = postJSONReq(t, ts, "/auth/logout", logoutRequest{RefreshToken: reg.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat logout: expected 204, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSONReq(t, ts, "/auth/refresh", refreshRequest{RefreshToken: reg.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestHandler_LogoutAllRequiresAccessToken(t *testing.T) {
	_, ts := newTestHandler(t, nil)
	reg := registerUser(t, ts, "ada", "correct horse battery")

	resp := postJSONReq(t, ts, "/auth/logout_all", struct{}{}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no bearer: expected 401, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSONReq(t, ts, "/auth/logout_all", struct{}{}, reg.Tokens.AccessToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout_all: expected 204, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Every refresh token for the subject is dead.
	resp = postJSONReq(t, ts, "/auth/refresh", refreshRequest{RefreshToken: reg.Tokens.RefreshToken}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout_all: expected 401, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestHandler_MeReturnsAuthenticatedUser(t *testing.T) {
	_, ts := newTestHandler(t, nil)
	reg := registerUser(t, ts, "ada", "correct horse battery")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+reg.Tokens.AccessToken)

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("http.Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	me := decodeBody[meResponse](t, resp)
	if me.User.ID != reg.User.ID || me.User.Username != "ada" {
		t.Fatalf("unexpected me response: %+v", me.User)
	}
}

func TestHandler_LoginThrottleBlocksAfterBudget(t *testing.T) {
	_, ts := newTestHandler(t, func(c *Config) {
		c.LoginIPMax = 3
		c.LoginIPWindow = time.Minute
	})
	registerUser(t, ts, "ada", "correct horse battery")

	var last int
	for i := 0; i < 5; i++ {
		resp := postJSONReq(t, ts, "/auth/login", loginRequest{Username: "ada", Password: "wrong password!"}, "")
		last = resp.StatusCode
		_ = resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exhausting budget, got %d", last)
	}
}

func TestHandler_BodyDecodeRejectsOversizedAndTrailingData(t *testing.T) {
	_, ts := newTestHandler(t, func(c *Config) { c.MaxBodyBytes = 128 })

	big := bytes.Repeat([]byte("a"), 512)
	body, err := json.Marshal(loginRequest{Username: "ada", Password: string(big)})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	resp, err := ts.Client().Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", resp.StatusCode)
	}
	er := decodeBody[errorResponse](t, resp)
	if er.Error.Code != "payload_too_large" {
		t.Fatalf("expected payload_too_large, got %q", er.Error.Code)
	}

	resp, err = ts.Client().Post(ts.URL+"/auth/login", "application/json",
		strings.NewReader(`{"username":"ada","password":"pw"}{"extra":true}`))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for trailing data, got %d", resp.StatusCode)
	}
	er = decodeBody[errorResponse](t, resp)
	if er.Error.Code != "invalid_json" {
		t.Fatalf("expected invalid_json, got %q", er.Error.Code)
	}
}
