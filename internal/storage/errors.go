package storage

import "errors"

// Storage errors shared by the in-memory store and archive backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails, e.g. a non-positive capacity.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedDSN is returned when an archive DSN names an unknown backend.
	ErrUnsupportedDSN = errors.New("unsupported archive dsn")
)
