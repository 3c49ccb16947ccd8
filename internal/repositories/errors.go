package repositories

import "errors"

var (
	// ErrNotFound is returned when the addressed row does not exist or is not
	// owned by the calling user.
	ErrNotFound = errors.New("repositories: row not found")
	// ErrConflict is returned when a write violates a uniqueness constraint,
	// such as a second buddy edge between the same two users.
	ErrConflict = errors.New("repositories: conflicting row")
)
