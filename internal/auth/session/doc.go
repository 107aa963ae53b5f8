// Package session implements Aria's token lifecycle.
//
// It issues short-lived PASETO v4.public access tokens and longer-lived
// refresh tokens carrying a kind discriminator, persists refresh-token
// records durably (Postgres or in-memory) with hashed token values, and
// accelerates validity lookups through a read-through, write-through
// follower cache that is never the source of truth.
//
// Refresh tokens are single-use: rotation revokes the presented token
// before a replacement is persisted, so concurrent rotations of the same
// token have exactly one winner.
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
