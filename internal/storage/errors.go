package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateOpenTask is returned when inserting a task would violate the
// at-most-one-open-task invariant for its (reference entity, type) pair.
var ErrDuplicateOpenTask = errors.New("storage: open task already exists for entity and type")
