package service

import "errors"

var (
	// ErrNotFound covers both genuinely missing keys and keys the caller
	// does not own, so responses never reveal which of the two it was.
	ErrNotFound = errors.New("api key not found")

	// ErrBadRequest rejects malformed input, such as reserved key names.
	ErrBadRequest = errors.New("invalid request")

	// ErrInvalidState rejects operations not permitted in the key's
	// current state, such as renaming a revoked key.
	ErrInvalidState = errors.New("operation not permitted in current state")
)
