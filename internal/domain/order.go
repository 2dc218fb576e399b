package domain

import "time"

// FillStatus is the backend-reported fill state of a trade order.
type FillStatus string

const (
	FillPending FillStatus = "PENDING"
	FillFilled  FillStatus = "FILLED"
)

// Fill is one fill-status snapshot for an order, as polled from the venue.
type Fill struct {
	OrderID      string
	Status       FillStatus
	FilledQty    float64
	AvgFillPrice float64
	Confirmed    bool
}

// Filled reports whether any signal in the snapshot confirms execution.
func (f Fill) Filled() bool {
	return f.Status == FillFilled || f.Confirmed || f.FilledQty > 0
}

// WatchState is the UI-facing tri-state of a fill watch session. Once
// filled or unconfirmed-timeout is reached it is final for that session.
type WatchState string

const (
	WatchWatching WatchState = "watching"
	WatchFilled   WatchState = "filled"
	WatchTimedOut WatchState = "unconfirmed-timeout"
)

// Terminal reports whether the watch session has resolved.
func (s WatchState) Terminal() bool {
	return s == WatchFilled || s == WatchTimedOut
}

// FillOutcome is one event emitted by a fill watch session. Exactly one
// terminal outcome is emitted per session; a LateConfirm outcome may follow
// a timeout when an in-flight poll returns FILLED after the deadline — it is
// informational and does not retract the committed TIMED_OUT state.
type FillOutcome struct {
	OrderID     string
	SessionID   string
	State       WatchState
	Fill        Fill
	LateConfirm bool
	Elapsed     time.Duration
}
