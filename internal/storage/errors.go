package storage

import "errors"

// Journal errors.
var (
	// ErrDuplicateKey is returned when a record id was already journaled.
	// The journal is append-only and does not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only journal does not allow updates")

	// ErrInvalidInput is returned when a record fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed is returned by Record after Close.
	ErrClosed = errors.New("journal closed")
)
