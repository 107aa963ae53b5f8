package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"aria/internal/security/token"

	"github.com/oklog/ulid/v2"
)

const mockTokenPrefix = "mock"

// Service implements the high-level token operations for Aria.
//
// It issues token pairs, verifies access tokens statelessly, rotates refresh
// tokens single-use, and revokes per subject.
type Service struct {
	cfg   Config
	log   *slog.Logger
	codec Codec
	store *TokenStore
}

// NewService constructs a Service with the provided configuration, codec, and store.
func NewService(cfg Config, log *slog.Logger, codec Codec, store *TokenStore) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, log: log, codec: codec, store: store}
}

// Login issues a fresh token pair for a subject and persists the refresh
// token durably. Persistence failure is fatal to this one issuance: no token
// is usable without a durable record.
func (s *Service) Login(ctx context.Context, now time.Time, subjectID string) (Pair, error) {
	pair, err := s.codec.IssuePair(subjectID, now)
	if err != nil {
		return Pair{}, err
	}

	rec := Record{
		ID:        ulid.Make().String(),
		TokenHash: token.HashRefreshTokenHex(pair.RefreshToken),
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: pair.RefreshExp,
	}
	if err := s.store.Persist(ctx, rec); err != nil {
		return Pair{}, err
	}

	tokenPairsIssued.Inc()
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is single-use.
//
// Security model:
//   - Verify signature, kind, and expiry first (stateless).
//   - The durable revoke of the presented hash is the linearization point:
//     only one concurrent rotation observes the valid->revoked transition;
//     the loser gets ErrTokenRevoked (reuse after rotation included).
//   - Persist the replacement only after the revoke. If persistence fails
//     the subject must re-authenticate; the old token is never re-validated.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (Pair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshToken == "" || len(refreshToken) > 4096 {
		return Pair{}, ErrInvalidToken
	}

	claims, err := s.codec.Verify(refreshToken, KindRefresh, now)
	if err != nil {
		tokenRotations.WithLabelValues("rejected").Inc()
		return Pair{}, err
	}

	hash := token.HashRefreshTokenHex(refreshToken)

	won, err := s.store.Revoke(ctx, now, hash)
	if err != nil {
		tokenRotations.WithLabelValues("rejected").Inc()
		return Pair{}, err
	}
	if !won {
		tokenRotations.WithLabelValues("reuse").Inc()
		return Pair{}, ErrTokenRevoked
	}

	pair, err := s.Login(ctx, now, claims.SubjectID)
	if err != nil {
		// Fail closed: the presented token is already revoked.
		s.log.Error("token.rotate.persist.fail", "subject_id", claims.SubjectID, "err", err)
		tokenRotations.WithLabelValues("fail_closed").Inc()
		return Pair{}, err
	}

	tokenRotations.WithLabelValues("rotated").Inc()
	return pair, nil
}

// Logout revokes the presented refresh token (logout of one session).
// Already-revoked and unknown tokens surface as ErrTokenRevoked and
// ErrTokenNotFound; signature or expiry failures are rejected first.
func (s *Service) Logout(ctx context.Context, now time.Time, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return ErrInvalidToken
	}

	if _, err := s.codec.Verify(refreshToken, KindRefresh, now); err != nil {
		return err
	}

	won, err := s.store.Revoke(ctx, now, token.HashRefreshTokenHex(refreshToken))
	if err != nil {
		return err
	}
	if !won {
		return ErrTokenRevoked
	}

	tokenRevocations.Inc()
	return nil
}

// RevokeAll revokes every refresh token for a subject (logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, now time.Time, subjectID string) error {
	if err := s.store.RevokeAllForSubject(ctx, now, subjectID); err != nil {
		return err
	}
	tokenRevocations.Inc()
	return nil
}

// VerifyAccess verifies an access token and returns its subject.
//
// Stateless by design: access tokens are not individually revocable, their
// short TTL bounds the exposure of a stolen token. Revocation operates at
// the refresh-token level.
func (s *Service) VerifyAccess(accessToken string, now time.Time) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", ErrInvalidToken
	}

	// Debug bypass, default off. Never enable in production.
	if s.cfg.DevAllowMockTokens && strings.HasPrefix(accessToken, mockTokenPrefix) {
		subject := strings.TrimLeft(strings.TrimPrefix(accessToken, mockTokenPrefix), "-")
		if subject == "" {
			return "", ErrInvalidToken
		}
		s.log.Warn("token.verify.mock_bypass", "subject_id", subject)
		return subject, nil
	}

	claims, err := s.codec.Verify(accessToken, KindAccess, now)
	if err != nil {
		return "", err
	}
	return claims.SubjectID, nil
}

// IsRefreshValid reports whether a plain refresh token is currently valid.
// Exposed for introspection endpoints and tests; rotation does not use it.
func (s *Service) IsRefreshValid(ctx context.Context, now time.Time, refreshToken string) bool {
	return s.store.IsValid(ctx, token.HashRefreshTokenHex(refreshToken), now)
}

// RunSweeper deletes expired/revoked records on a fixed interval until the
// context is cancelled. Intended to run as a background goroutine owned by
// the app lifecycle.
func (s *Service) RunSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.SweepExpired(ctx, time.Now().UTC())
			if err != nil {
				s.log.Warn("token.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("token.sweep", "deleted", n)
			}
		}
	}
}
