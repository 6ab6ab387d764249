// Package dom hosts a parsed HTML page the way a browser tab hosts it for a
// content script.
//
// A Document wraps a golang.org/x/net/html tree and adds the pieces of the
// browser environment that link rewriting relies on:
//
//   - a ready state (loading, interactive, complete) with change events
//   - node insertion events, fired when content is appended after load
//   - click dispatch through capture and bubble phases, with
//     StopImmediatePropagation and PreventDefault
//   - inline style display access
//   - a Location that records navigations
//
// Listeners are identified by pointer. Removing a listener requires the
// exact *Listener that was added, as with removeEventListener.
//
// Document methods are safe for concurrent use. Callbacks always run after
// the document's internal lock is released, so a listener may call back into
// the Document.
//
// # Usage
//
//	doc, err := dom.Parse(r, "https://www.google.com/search?q=news", dom.WithReadyState(dom.Loading))
//	l := dom.NewListener(func(e *dom.Event) { ... })
//	doc.AddEventListener(dom.EventReadyStateChange, l)
//	doc.SetReadyState(dom.Complete)
package dom
