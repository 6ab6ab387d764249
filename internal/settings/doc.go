// Package settings stores user settings for deamp in SQLite.
//
// The only setting the rewrite engine consumes is the ignore list: the
// hostnames whose links are never rewritten. It is stored as a JSON string
// array under the key "ignoredHostnames" and defaults to an empty list.
//
// Store implements the engine's settings source. Writes that change the
// list notify subscribers synchronously, after the write has committed.
// Writes made by other processes are picked up by Watch, which polls
// SQLite's data_version pragma.
//
// Hostnames are normalized on the way in: trimmed, lowercased, converted to
// their ASCII (punycode) form, and reduced to the hostname when a full URL
// is given. Duplicates are dropped and the first occurrence keeps its place.
package settings
