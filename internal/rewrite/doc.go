// Package rewrite points proxied result links at their canonical URLs.
//
// A Rewriter scans a dom.Document for result anchors, decides per link
// whether to rewrite, revert or leave it alone, and records every rewrite in
// a Ledger so that it can be undone later. A rewritten anchor gets:
//
//   - its href replaced by the canonical URL
//   - a capture-phase click listener that stops the host page's handlers and
//     navigates straight to the canonical URL
//   - its proxy badge hidden, when one is found
//
// Passes are idempotent. A link already in the ledger is left alone unless
// its hostname has since been ignored, in which case it is reverted.
package rewrite
