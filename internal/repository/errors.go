package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUnique indicates a uniqueness constraint rejected the write.
	ErrUnique = errors.New("repository: unique constraint violated")
	// ErrStorage wraps lower-level storage faults.
	ErrStorage = errors.New("repository: storage failure")
	// ErrNullOrdering indicates a row carried a null value in an ordering column.
	ErrNullOrdering = errors.New("repository: null value in ordering column")
)
