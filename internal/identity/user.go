package identity

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// User is Aria's canonical security principal.
type User struct {
	ID           string
	Username     string
	UsernameNorm string

	// PasswordHash is a PHC-encoded Argon2id hash. The plain password is
	// never stored.
	PasswordHash string

	CreatedAt time.Time
}

// CreateUserInput describes a user registration request.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	Create(ctx context.Context, in CreateUserInput) (User, error)
	GetByUsername(ctx context.Context, usernameNorm string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// NormalizeUsername lowercases and trims a username for uniqueness checks.
// Validation of the normalized form is the caller's job (ValidUsername).
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether a normalized username has the accepted shape:
// 3..32 chars, lowercase alphanumerics plus . _ -, starting alphanumeric.
func ValidUsername(norm string) bool {
	return usernameRe.MatchString(norm)
}
