// Package canonical turns proxied ("accelerated") result URLs into the
// publisher's canonical URL.
//
// Canonicalization is a pure function of its input string:
//
//  1. The string is parsed as an absolute URL. Failure yields ErrMalformedURL.
//  2. Every query parameter whose key or value is exactly the proxy marker
//     (default "amp") is removed. The remaining parameters keep their order
//     and their original encoding.
//  3. A leading "/amp/" path segment is stripped, or failing that a trailing
//     one. A path that is exactly "/amp/" is left alone.
//  4. The URL is serialized back to a string.
//
// # Usage
//
//	canonicalURL, err := canonical.Canonicalize("https://example.com/amp/article?amp=1&x=2")
//	// canonicalURL == "https://example.com/article?x=2"
package canonical
