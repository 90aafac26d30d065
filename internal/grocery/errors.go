package grocery

import "errors"

var (
	// ErrNoActiveList indicates a personal-scope operation was attempted
	// with no active list code.
	ErrNoActiveList = errors.New("no active personal list")

	// ErrEmptyCode indicates a list operation was given a blank code.
	ErrEmptyCode = errors.New("list code must not be empty")
)
