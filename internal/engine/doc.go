// Package engine keeps a document's result links rewritten as the page
// grows and the ignore list changes.
//
// An Engine is a two-state machine. While the document is loading it waits
// in AwaitingDocumentReady with a single pending ready-state retry; each new
// retry replaces the previous one. Once the document is no longer loading it
// moves to Active, runs a rewrite pass, and observes node insertions, running
// another pass for each one. Ignore list changes reported by the Source
// re-enter the machine with the new list, which reverts links for newly
// ignored hosts and rewrites links for hosts no longer ignored.
//
// All entry points are serialized by one mutex, so passes never overlap
// even when the Source notifies from another goroutine.
package engine
