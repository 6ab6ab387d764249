package pipeline

import "errors"

var (
	// ErrNoFetcher is returned when a URL input is given but no fetcher is configured.
	ErrNoFetcher = errors.New("no fetcher configured for URL input")

	// ErrNoDocument is returned by steps that need a parsed document when none exists.
	ErrNoDocument = errors.New("page has not been parsed")

	// ErrNoOutput is returned by steps that need rendered output when none exists.
	ErrNoOutput = errors.New("page has not been rendered")

	// ErrInputTooLarge is returned when a file or stdin input exceeds the size limit.
	ErrInputTooLarge = errors.New("input too large")
)
