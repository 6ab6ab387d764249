// Package model defines the data structures shared by the rewrite engine,
// the page pipeline and the report writers.
//
// This package contains the following main types:
//   - LinkOutcome: what a rewrite pass decided for one result link
//   - Page: one processed search results page and its link outcomes
//   - Summary: per-status counts for a page
//
// The models are serializable to JSON for report output.
package model
