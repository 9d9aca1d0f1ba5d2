package scalp

import (
	"fmt"
	"time"

	"github.com/rayvtoll/scalp-assist/internal/venue"
)

// TriggerSpec describes the price level whose crossing starts the run.
// It is created once at startup and read-only afterwards.
type TriggerSpec struct {
	Instrument   string
	Direction    venue.Direction
	TriggerPrice float64 // watch level (the POI)
	EntryPrice   float64 // trigger-order price, offset from the POI
}

// NewTriggerSpec derives the entry price from the watch level and offset:
// shorts enter slightly below the POI, longs slightly above, so the entry
// order is taken on the move back through the level.
func NewTriggerSpec(instrument string, dir venue.Direction, triggerPrice, offset float64) (*TriggerSpec, error) {
	if triggerPrice <= 0 {
		return nil, fmt.Errorf("trigger price must be positive, got %f", triggerPrice)
	}
	entry := triggerPrice * (1 + offset)
	if dir == venue.DirectionShort {
		entry = triggerPrice * (1 - offset)
	}
	return &TriggerSpec{
		Instrument:   instrument,
		Direction:    dir,
		TriggerPrice: triggerPrice,
		EntryPrice:   RoundPrice(entry),
	}, nil
}

// TriggerEvent is the single armed→triggered transition of a run.
type TriggerEvent struct {
	Price float64
	At    time.Time
}

// TriggerState tracks whether the watch level has been crossed. Triggered
// never reverts to false once set.
type TriggerState struct {
	Triggered   bool
	TriggeredAt time.Time
}

// TriggerWatcher consumes price ticks and fires at most once per run when
// the watch level is crossed.
type TriggerWatcher struct {
	spec   *TriggerSpec
	strict bool // strict comparator variant: < / > instead of <= / >=
	delay  time.Duration
	state  TriggerState

	now func() time.Time
}

// NewTriggerWatcher creates a watcher over spec. delay is an optional
// cooldown between the trigger firing and order creation; zero means act
// on the first qualifying tick.
func NewTriggerWatcher(spec *TriggerSpec, strict bool, delay time.Duration) *TriggerWatcher {
	return &TriggerWatcher{spec: spec, strict: strict, delay: delay, now: time.Now}
}

// Observe feeds the watcher one price tick. It returns a TriggerEvent on
// the first crossing of the watch level and nil on every call after that.
// Malformed ticks are rejected with ErrInvalidPrice.
func (w *TriggerWatcher) Observe(price float64) (*TriggerEvent, error) {
	if err := CheckPrice(price); err != nil {
		return nil, err
	}
	if w.state.Triggered {
		return nil, nil
	}
	if !w.crossed(price) {
		return nil, nil
	}
	w.state.Triggered = true
	w.state.TriggeredAt = w.now()
	return &TriggerEvent{Price: price, At: w.state.TriggeredAt}, nil
}

func (w *TriggerWatcher) crossed(price float64) bool {
	level := w.spec.TriggerPrice
	if w.spec.Direction == venue.DirectionLong {
		if w.strict {
			return price < level
		}
		return price <= level
	}
	if w.strict {
		return price > level
	}
	return price >= level
}

// Triggered reports whether the watch level has been crossed.
func (w *TriggerWatcher) Triggered() bool {
	return w.state.Triggered
}

// DelayRemaining returns how much of the post-trigger cooldown is left.
// Zero means order creation may proceed.
func (w *TriggerWatcher) DelayRemaining() time.Duration {
	if !w.state.Triggered {
		return w.delay
	}
	remaining := w.delay - w.now().Sub(w.state.TriggeredAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
