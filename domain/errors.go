package domain

import "errors"

var (
	// ErrNotFound is returned when no event matches a lookup.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidDatetime indicates editor input that does not parse as a datetime.
	ErrInvalidDatetime = errors.New("invalid datetime")
	// ErrInvalidTitle indicates an empty event title.
	ErrInvalidTitle = errors.New("title required")
	// ErrConcurrencyConflict indicates that the underlying storage rejected a write
	// because the entity changed since it was read.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
