package dom

import "golang.org/x/net/html"

// EventType names a kind of event dispatched by a Document.
type EventType string

// Event types.
const (
	// EventReadyStateChange fires on the document when its ready state changes.
	EventReadyStateChange EventType = "readystatechange"

	// EventNodeInserted fires on the document for every node inserted after parse.
	EventNodeInserted EventType = "DOMNodeInserted"

	// EventClick fires on an element and propagates through its ancestors.
	EventClick EventType = "click"
)

// Phase is the propagation phase an event is in.
type Phase int

const (
	// PhaseNone is used for events that do not propagate.
	PhaseNone Phase = iota
	// PhaseCapturing runs from the document down to the target's parent.
	PhaseCapturing
	// PhaseAtTarget runs on the target itself.
	PhaseAtTarget
	// PhaseBubbling runs from the target's parent up to the document.
	PhaseBubbling
)

// Event is passed to listeners.
type Event struct {
	// Type is the event type.
	Type EventType

	// Target is the node the event was dispatched to. It is nil for
	// document-level events such as EventReadyStateChange.
	Target *html.Node

	// CurrentTarget is the node whose listener is running; nil means the document.
	CurrentTarget *html.Node

	// Phase is the current propagation phase.
	Phase Phase

	// ReadyState is the new state for EventReadyStateChange.
	ReadyState ReadyState

	propagationStopped bool
	immediateStopped   bool
	defaultPrevented   bool
}

// StopPropagation prevents the event from reaching further nodes. Listeners
// on the current node still run.
func (e *Event) StopPropagation() {
	e.propagationStopped = true
}

// StopImmediatePropagation prevents any further listener from running,
// including the remaining listeners on the current node.
func (e *Event) StopImmediatePropagation() {
	e.propagationStopped = true
	e.immediateStopped = true
}

// PreventDefault cancels the default action, such as following a link.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// PropagationStopped reports whether StopPropagation or
// StopImmediatePropagation was called.
func (e *Event) PropagationStopped() bool {
	return e.propagationStopped
}

// Listener is an event handler. Its identity is its pointer.
type Listener struct {
	handle  func(*Event)
	capture bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// Capture registers the listener for the capture phase.
func Capture() ListenerOption {
	return func(l *Listener) {
		l.capture = true
	}
}

// NewListener creates a Listener that calls fn.
func NewListener(fn func(*Event), opts ...ListenerOption) *Listener {
	l := &Listener{handle: fn}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsCapture reports whether the listener runs in the capture phase.
func (l *Listener) IsCapture() bool {
	return l.capture
}
