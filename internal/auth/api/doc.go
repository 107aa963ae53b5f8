// Package authapi exposes Aria's HTTP authentication endpoints:
// register, login, refresh, logout, logout_all, and me.
//
// It is a thin JSON layer over internal/identity (who is this) and
// internal/auth/session (token lifecycle). All responses are JSON with
// Cache-Control: no-store.
package authapi
