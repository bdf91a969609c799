package store

import "errors"

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("record not found")
