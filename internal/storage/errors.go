package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// whose unique key already exists. The deduplicator treats this as
	// a normal admitted=false outcome, not a failure.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStatusConflict is returned by SetStatus when the record's
	// current status does not match the expected from-status.
	ErrStatusConflict = errors.New("status conflict")
)
