// Package log builds the slog loggers used by deamp.
//
// Loggers created here wrap their handler in a SecureHandler, which masks
// cookies, authorization headers and tokens, and redacts signatures and
// click tokens carried in the query strings of search result URLs. Pages
// fetched with a consent cookie or a signed redirect can therefore be logged
// at debug level without leaking either.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("fetching page", "url", "https://www.google.com/url?q=x&usg=AOv")
//	// url=https://www.google.com/url?q=x&usg=***REDACTED***
package log
