package identity

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned when the normalized username already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidUsername is returned for usernames outside the accepted shape.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrPasswordTooShort is returned when the password is below the minimum length.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrPasswordTooLong is returned when the password exceeds the maximum length.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrInvalidHash is returned for malformed or unsupported PHC hash strings.
	ErrInvalidHash = errors.New("invalid argon2id hash format")
)
