package settings

import "errors"

var (
	// ErrInvalidHostname is returned when a value has no usable hostname.
	ErrInvalidHostname = errors.New("invalid hostname")

	// ErrDatabaseNotFound is returned by Open when the database does not
	// exist and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("settings database not found")
)
