// Package identity holds Aria's user principals and credential hashing.
//
// It owns the user persistence boundary and Argon2id password hashing.
// Token issuance and session lifecycle live in internal/auth/session;
// identity only answers "who is this" and "does this password match".
package identity
