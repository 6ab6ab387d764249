// Package main provides the entry point for the deamp CLI.
//
// deamp rewrites search result links that point at AMP proxy pages so they
// point at the publisher's canonical page, and hides the AMP badges next to
// them.
//
// Usage:
//
//	deamp rewrite results.html
//	deamp rewrite --output-dir out https://www.google.com/search?q=news
//	deamp canonicalize https://example.com/news/amp/
//	deamp ignore add example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
