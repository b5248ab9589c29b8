package store

import "errors"

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput rejects blank usernames and negative occupancy values.
	ErrInvalidInput = errors.New("invalid input")
)
