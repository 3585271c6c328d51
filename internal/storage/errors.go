package storage

import "errors"

// Common storage errors
var (
	ErrNotFound   = errors.New("not found")
	ErrSaltReused = errors.New("salt already used")
	ErrDisabled   = errors.New("ledger disabled")
)
