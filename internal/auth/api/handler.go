package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aria/internal/auth/session"
	"aria/internal/identity"
)

// Handler wires HTTP auth endpoints to the identity store and token service.
type Handler struct {
	log *slog.Logger
	cfg Config

	users  identity.Store
	tokens *session.Service

	throttle *ipThrottle

	// Dummy hash for timing-resistant login checks against unknown users.
	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, tokens *session.Service) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("authapi: nil user store")
	}
	if tokens == nil {
		return nil, errors.New("authapi: nil token service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		throttle: newIPThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.cfg.AllowRegistration {
		writeError(w, http.StatusForbidden, "registration_disabled", "registration is disabled")
		return
	}

	var req registerRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	norm := identity.NormalizeUsername(req.Username)
	if !identity.ValidUsername(norm) {
		writeError(w, http.StatusBadRequest, "invalid_username", "username must be 3-32 chars: a-z 0-9 . _ -")
		return
	}

	hash, err := identity.HashPassword(req.Password, identity.DefaultArgon2idParams())
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, "weak_password", "password too short")
		case errors.Is(err, identity.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "invalid_request", "password too long")
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	now := time.Now().UTC()
	u, err := h.users.Create(r.Context(), identity.CreateUserInput{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", "username already taken")
		case errors.Is(err, identity.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, "invalid_username", "invalid username")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	pair, err := h.tokens.Login(r.Context(), now, u.ID)
	if err != nil {
		h.log.Error("auth.register.issue.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "token_unavailable", "could not issue tokens")
		return
	}

	h.log.Info("auth.register.ok", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, loginResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if ok, retryAfter := h.throttle.Allow(ip, now); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	var req loginRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	norm := identity.NormalizeUsername(req.Username)
	if norm == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	u, err := h.users.GetByUsername(r.Context(), norm)
	if err != nil {
		// Timing resistance: dummy verify when the user is missing, then the
		// same generic rejection as a wrong password.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		}
		h.log.Info("auth.login.fail", "reason", "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		h.log.Info("auth.login.fail", "user_id", u.ID, "reason", "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	pair, err := h.tokens.Login(r.Context(), now, u.ID)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "token_unavailable", "could not issue tokens")
		return
	}

	h.log.Info("auth.login.ok", "user_id", u.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), time.Now().UTC(), req.RefreshToken)
	if err != nil {
		h.writeTokenError(w, "auth.refresh.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Tokens: toTokenResponse(pair)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	err := h.tokens.Logout(r.Context(), time.Now().UTC(), req.RefreshToken)
	if err != nil && !errors.Is(err, session.ErrTokenRevoked) {
		// Logging out an already-revoked token is not an error for the client.
		h.writeTokenError(w, "auth.logout.fail", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	subjectID, ok := h.requireAccess(w, r)
	if !ok {
		return
	}

	if err := h.tokens.RevokeAll(r.Context(), time.Now().UTC(), subjectID); err != nil {
		h.log.Error("auth.logout_all.fail", "user_id", subjectID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		return
	}

	h.log.Info("auth.logout_all.ok", "user_id", subjectID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	subjectID, ok := h.requireAccess(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetByID(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_token", "unknown subject")
			return
		}
		h.log.Error("auth.me.fail", "user_id", subjectID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

// requireAccess authenticates the request via the Authorization bearer token.
func (h *Handler) requireAccess(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required")
		return "", false
	}

	subjectID, err := h.tokens.VerifyAccess(token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return "", false
	}
	return subjectID, true
}

func (h *Handler) writeTokenError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, session.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
	case errors.Is(err, session.ErrTokenNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown token")
	case errors.Is(err, session.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrKindMismatch):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, session.ErrStoreUnavailable):
		h.log.Error(event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			// First hop is the original client.
			if i := strings.IndexByte(xff, ','); i >= 0 {
				xff = xff[:i]
			}
			return strings.TrimSpace(xff)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func toTokenResponse(p session.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExp,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExp,
	}
}
