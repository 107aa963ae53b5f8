package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must not close it.
// Schema identifiers are validated to avoid SQL injection via identifiers.
//
// Expected table (schema "aria" by default):
//
//	CREATE TABLE aria.users (
//	    id            TEXT PRIMARY KEY,
//	    username      TEXT NOT NULL,
//	    username_norm TEXT NOT NULL UNIQUE,
//	    password_hash TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "aria").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "aria"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%q.users", s.schema)
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, in CreateUserInput) (User, error) {
	norm := NormalizeUsername(in.Username)
	if !ValidUsername(norm) {
		return User{}, ErrInvalidUsername
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:           ulid.Make().String(),
		Username:     in.Username,
		UsernameNorm: norm,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, username, username_norm, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.table())

	_, err := s.pool.Exec(ctx, q, u.ID, u.Username, u.UsernameNorm, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("identity: create user: %w", err)
	}
	return u, nil
}

// GetByUsername implements Store. The argument must already be normalized.
func (s *PostgresStore) GetByUsername(ctx context.Context, usernameNorm string) (User, error) {
	q := fmt.Sprintf(`
		SELECT id, username, username_norm, password_hash, created_at
		FROM %s
		WHERE username_norm = $1
	`, s.table())

	return s.scanOne(ctx, q, usernameNorm)
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	q := fmt.Sprintf(`
		SELECT id, username, username_norm, password_hash, created_at
		FROM %s
		WHERE id = $1
	`, s.table())

	return s.scanOne(ctx, q, id)
}

func (s *PostgresStore) scanOne(ctx context.Context, q string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("identity: get user: %w", err)
	}
	return u, nil
}

var _ Store = (*PostgresStore)(nil)
