package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSchemaMismatch      = errors.New("schema version mismatch")
)
