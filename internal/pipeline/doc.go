// Package pipeline runs search results pages through the de-proxying steps.
//
// A page is loaded (file, URL or stdin), parsed into a dom.Document, handed
// to an engine that rewrites its proxied links, optionally grown with
// "more results" fragments, rendered back to HTML, optionally minified and
// written out. Each step receives the Job of the page being processed and
// records what it did on the job's model.Page.
//
// BatchProcessor runs one pipeline per page with bounded concurrency using
// errgroup. Pages never share a document or an engine.
package pipeline
