package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrOrdinalConflict is returned when ordinal allocation for a project still
// collides after all retries. Callers may re-invoke materialization; ordinals
// already handed out are never reused.
var ErrOrdinalConflict = errors.New("storage: ordinal allocation conflict")
