package config

import "errors"

// Configuration validation errors, returned by Config.Validate.
var (
	// ErrNoInput is returned when no page was given.
	ErrNoInput = errors.New("no input specified: provide a file, a URL or - for stdin")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidReportFormat is returned for an unknown --report value.
	ErrInvalidReportFormat = errors.New("invalid report format: must be text, json or markdown")

	// ErrConflictingOutputs is returned when both --output and --output-dir are set.
	ErrConflictingOutputs = errors.New("conflicting outputs: --output and --output-dir cannot be used together")

	// ErrOutputNeedsSingleInput is returned when --output is used with several inputs.
	ErrOutputNeedsSingleInput = errors.New("--output accepts a single input; use --output-dir for several")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidBaseURL is returned when --base-url is not an absolute URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be absolute")

	// ErrInvalidSegment is returned when the proxy marker is empty or contains '/'.
	ErrInvalidSegment = errors.New("invalid proxy segment: must be a non-empty path segment")
)
