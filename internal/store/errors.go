package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as a duplicate email or a concurrent mutation of the same book.
var ErrConflict = errors.New("conflict")

// ErrNotAvailable is returned when a reservation is attempted on a book
// that already holds one.
var ErrNotAvailable = errors.New("book not available")
