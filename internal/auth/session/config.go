package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the token subsystem.
//
// It controls access/refresh token TTLs, clock skew tolerance, cache TTL
// bounds, and PASETO v4 signing keys.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// SweepInterval controls how often expired/revoked records are deleted.
	SweepInterval time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public tokens.
	PasetoV4SecretKeyHex string

	// DevAllowMockTokens accepts "mock"-prefixed access tokens without
	// verification. Debug aid only; must never be enabled in production.
	DevAllowMockTokens bool
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:             "aria",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		SweepInterval:      time.Hour,
		DevAllowMockTokens: false,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - ARIA_PASETO_V4_SECRET_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - ARIA_AUTH_ISSUER
//   - ARIA_AUTH_ACCESS_TTL
//   - ARIA_AUTH_REFRESH_TTL
//   - ARIA_AUTH_CLOCK_SKEW
//   - ARIA_AUTH_SWEEP_INTERVAL
//   - ARIA_AUTH_DEV_MOCK_TOKENS
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("ARIA_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("ARIA_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("ARIA_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("ARIA_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("ARIA_AUTH_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("ARIA_AUTH_DEV_MOCK_TOKENS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.DevAllowMockTokens = b
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("ARIA_PASETO_V4_SECRET_KEY_HEX")
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	// Invariant: access tokens must be shorter-lived than refresh tokens.
	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
