package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint
// (duplicate email or wallet address).
var ErrConflict = errors.New("conflict")

// ErrNotPending is returned when a status transition is attempted on an
// account that has already left the pending state.
var ErrNotPending = errors.New("account is not pending")
