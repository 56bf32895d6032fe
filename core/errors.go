package core

import "errors"

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthRequired is returned when a mutating call carries no valid session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotFound is returned when no post has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for rejected input (e.g. empty title).
	ErrValidation = errors.New("validation failed")
	// ErrStorageCorrupt is returned when the posts file exists but cannot be
	// parsed as a valid collection. The file is never overwritten in that
	// state; the operator has to inspect or reset it.
	ErrStorageCorrupt = errors.New("storage corrupt")
)
