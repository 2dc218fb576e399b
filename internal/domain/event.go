package domain

// EventKind tags the known push event variants. Frames the client does not
// recognize decode to EventUnknown and are dropped without touching state.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventRunStatus
	EventStepUpdate
	EventStreamEnd
)

// RunEvent is one decoded frame from the push stream. Kind determines which
// fields are meaningful: Status for EventRunStatus, Step for EventStepUpdate.
// EventStreamEnd carries nothing — the connection dropped; it is a signal,
// never an authoritative run failure.
type RunEvent struct {
	Kind   EventKind
	RunID  string
	Status RunStatus
	Step   *Step
}
