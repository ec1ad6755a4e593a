package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrConditionFailed indicates a conditional update matched no rows.
	ErrConditionFailed = errors.New("repository: condition failed")
)
