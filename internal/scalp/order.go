package scalp

import (
	"time"

	"github.com/rayvtoll/scalp-assist/internal/venue"
)

// State is the lifecycle state of the managed order.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingTrigger State = "awaiting_trigger"
	StatePendingCreate   State = "pending_create"
	StateLive            State = "live"
	StateAdjusting       State = "adjusting"
	StateFilled          State = "filled"
	StateCanceled        State = "canceled"
	StateRejected        State = "rejected"
)

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateFilled || s == StateCanceled || s == StateRejected
}

// Outcome is the reason a run ended.
type Outcome string

const (
	OutcomeFilled              Outcome = "filled"
	OutcomeCanceledStopTooWide Outcome = "canceled_stop_too_wide"
	OutcomeCanceledStatusLost  Outcome = "canceled_status_lost"
	OutcomeAbortedCreateFailed Outcome = "aborted_create_failed"
)

// LifecycleResult is produced exactly once and ends the run loop.
type LifecycleResult struct {
	Outcome Outcome
	At      time.Time
}

// OrderIntent is the working state recomputed each reconciliation cycle.
// Zero StopLoss, TakeProfit or Risk mean "not yet computed". It is owned
// exclusively by the lifecycle manager; the stop-loss, target and sizing
// functions are pure and never hold a copy.
type OrderIntent struct {
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Risk       float64
	Size       float64
}

// RemoteOrder mirrors the venue-side state of the order. VenueOrderID is
// set exactly once, at creation; an edit reuses the same id.
type RemoteOrder struct {
	VenueOrderID string
	Status       venue.OrderStatus
	LastSyncedAt time.Time
}

// Event is one observable lifecycle change, emitted for every state
// transition and every accepted value change.
type Event struct {
	At         time.Time
	Instrument string
	State      State
	Note       string
	OrderID    string
	StopLoss   float64
	TakeProfit float64
	Size       float64
	Risk       float64
}

// Recorder receives lifecycle events for audit. Implementations must not
// fail the run.
type Recorder interface {
	Record(ev Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
