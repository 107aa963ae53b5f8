package session

import "errors"

var (
	// ErrInvalidToken is returned when a token fails signature or claim verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrKindMismatch is returned when a token of the wrong kind is presented
	// (e.g. an access token where a refresh token is required).
	ErrKindMismatch = errors.New("token kind mismatch")

	// ErrTokenNotFound is returned when a refresh token does not match any record.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked is returned when the refresh token has been revoked,
	// including reuse of a rotated token.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrStoreUnavailable is returned when the durable store cannot be reached.
	// Callers on read paths degrade (treat as invalid) rather than crash.
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
