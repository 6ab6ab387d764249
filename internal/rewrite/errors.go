package rewrite

import "errors"

var (
	// ErrAlreadyInstalled is returned when a record already exists for a link identifier.
	ErrAlreadyInstalled = errors.New("override already installed")

	// ErrNotInstalled is returned when reverting a link that has no record.
	ErrNotInstalled = errors.New("override not installed")

	// ErrInvalidMarkers is returned when a marker set is incomplete or its
	// badge selector does not compile.
	ErrInvalidMarkers = errors.New("invalid markers")
)
