package model

// LinkStatus is the decision a rewrite pass made for one link.
type LinkStatus string

// Link statuses.
const (
	// StatusRewritten means the link now points at its canonical URL.
	StatusRewritten LinkStatus = "rewritten"

	// StatusReverted means an earlier rewrite was undone because the
	// link's hostname joined the ignore list.
	StatusReverted LinkStatus = "reverted"

	// StatusIgnored means the hostname is ignored and the link was never touched.
	StatusIgnored LinkStatus = "ignored"

	// StatusSettled means the link was already rewritten by an earlier pass.
	StatusSettled LinkStatus = "settled"

	// StatusMalformed means the destination could not be parsed.
	StatusMalformed LinkStatus = "malformed"

	// StatusNoDestination means the link has no usable destination.
	StatusNoDestination LinkStatus = "no-destination"
)

// AllStatuses lists statuses in report order.
var AllStatuses = []LinkStatus{
	StatusRewritten,
	StatusReverted,
	StatusIgnored,
	StatusSettled,
	StatusMalformed,
	StatusNoDestination,
}

// LinkOutcome describes what happened to one result link.
type LinkOutcome struct {
	// ID is the host page's link identifier.
	ID string `json:"id"`

	// Status is the decision taken.
	Status LinkStatus `json:"status"`

	// Hostname is the destination's hostname, empty if it could not be parsed.
	Hostname string `json:"hostname,omitempty"`

	// Destination is the effective destination the decision was based on.
	Destination string `json:"destination,omitempty"`

	// Canonical is the canonical URL for rewritten links.
	Canonical string `json:"canonical,omitempty"`

	// BadgeHidden reports whether a proxy badge was hidden.
	BadgeHidden bool `json:"badge_hidden,omitempty"`

	// Error holds the parse error for malformed links.
	Error string `json:"error,omitempty"`
}
