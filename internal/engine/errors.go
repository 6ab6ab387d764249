package engine

import "errors"

var (
	// ErrSettingsRead is logged when the ignore list cannot be read. The
	// engine carries on with an empty list.
	ErrSettingsRead = errors.New("failed to read ignored hostnames")

	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("engine closed")
)
