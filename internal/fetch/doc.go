// Package fetch downloads search results pages over HTTP.
//
// Requests carry a browser User-Agent, since search engines only serve
// proxied result links to browsers, plus any cookie and headers configured
// for the target host (a consent cookie, for instance). Requests can be
// routed through a SOCKS5 proxy.
package fetch
