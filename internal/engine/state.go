package engine

// State is the reconciliation state.
type State int

const (
	// AwaitingDocumentReady means no pass has run yet because the ignore
	// list is still being read or the document is still loading.
	AwaitingDocumentReady State = iota
	// Active means passes run on every insertion and ignore list change.
	Active
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AwaitingDocumentReady:
		return "awaiting-document-ready"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Trigger names what caused a pass.
type Trigger string

const (
	// TriggerStart is the pass run when the engine starts on a ready document.
	TriggerStart Trigger = "start"
	// TriggerReady is the pass run when a loading document becomes ready.
	TriggerReady Trigger = "ready"
	// TriggerInsertion is a pass run after nodes were inserted.
	TriggerInsertion Trigger = "insertion"
	// TriggerSettings is a pass run after the ignore list changed.
	TriggerSettings Trigger = "settings"
)
