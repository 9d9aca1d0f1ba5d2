package scalp

import (
	"context"
	"fmt"
	"time"

	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
)

// OrderLifecycleManager owns the order's remote identity and drives it from
// creation through adjustment to a terminal state. All mutable run state
// (OrderIntent, RemoteOrder) lives here; the stop-loss, target and sizing
// helpers are pure functions it calls each cycle.
type OrderLifecycleManager struct {
	logger      *zap.Logger
	vn          venue.Venue
	spec        *TriggerSpec
	rec         Recorder
	baseSize    float64
	riskCeiling float64
	resendDelay time.Duration

	state    State
	intent   OrderIntent
	remote   RemoteOrder
	lastSent float64 // stop-loss value last pushed to the venue
	result   *LifecycleResult

	now func() time.Time
}

// NewOrderLifecycleManager creates a manager awaiting its trigger.
func NewOrderLifecycleManager(logger *zap.Logger, vn venue.Venue, spec *TriggerSpec, rec Recorder,
	baseSize, riskCeiling float64, resendDelay time.Duration) *OrderLifecycleManager {
	if rec == nil {
		rec = NopRecorder{}
	}
	m := &OrderLifecycleManager{
		logger:      logger,
		vn:          vn,
		spec:        spec,
		rec:         rec,
		baseSize:    baseSize,
		riskCeiling: riskCeiling,
		resendDelay: resendDelay,
		state:       StateIdle,
		intent:      OrderIntent{EntryPrice: spec.EntryPrice},
		now:         time.Now,
	}
	m.transition(StateAwaitingTrigger, "watching trigger level")
	return m
}

// State returns the current lifecycle state.
func (m *OrderLifecycleManager) State() State { return m.state }

// Intent returns a copy of the current working order values.
func (m *OrderLifecycleManager) Intent() OrderIntent { return m.intent }

// Remote returns a copy of the mirrored venue-side order state.
func (m *OrderLifecycleManager) Remote() RemoteOrder { return m.remote }

// Terminal reports whether the run has ended.
func (m *OrderLifecycleManager) Terminal() bool { return m.state.Terminal() }

// Result returns the terminal marker, or nil while the run is live.
func (m *OrderLifecycleManager) Result() *LifecycleResult { return m.result }

// Create places the contingent order on the venue. A create failure is
// fatal for the run: the manager enters Terminal{Rejected} and the error is
// returned so the caller can surface it. A stop already wider than the risk
// ceiling cancels the run before any venue call.
func (m *OrderLifecycleManager) Create(ctx context.Context, currentPrice float64) error {
	if m.state != StateAwaitingTrigger {
		return fmt.Errorf("create called in state %q", m.state)
	}
	if err := CheckPrice(currentPrice); err != nil {
		return err
	}
	m.transition(StatePendingCreate, "trigger fired")

	m.recompute(currentPrice)

	if m.intent.Risk > m.riskCeiling {
		m.logger.Warn("Stop loss too wide before create, aborting run",
			zap.Float64("risk", m.intent.Risk),
			zap.Float64("ceiling", m.riskCeiling))
		m.terminate(StateCanceled, OutcomeCanceledStopTooWide, "stop too wide before create")
		return nil
	}

	id, err := m.vn.CreateOrder(ctx, venue.OrderRequest{
		Instrument:   m.spec.Instrument,
		Direction:    m.spec.Direction,
		Size:         m.intent.Size,
		TriggerPrice: m.spec.EntryPrice,
		StopLoss:     m.intent.StopLoss,
		TakeProfit:   m.intent.TakeProfit,
	})
	if err != nil {
		m.logger.Error("Failed to create trigger order", zap.Error(err))
		m.terminate(StateRejected, OutcomeAbortedCreateFailed, "venue rejected create")
		return fmt.Errorf("create order: %w", err)
	}

	m.remote = RemoteOrder{
		VenueOrderID: id,
		Status:       venue.StatusOpen,
		LastSyncedAt: m.now(),
	}
	m.lastSent = m.intent.StopLoss
	m.logger.Info("Trigger order created",
		zap.String("order_id", id),
		zap.Float64("entry", m.spec.EntryPrice),
		zap.Float64("stop_loss", m.intent.StopLoss),
		zap.Float64("take_profit", m.intent.TakeProfit),
		zap.Float64("size", m.intent.Size))
	m.transition(StateLive, "order live on venue")
	return nil
}

// Reconcile performs one cycle: recompute stop/target/size from the current
// price, enforce the risk ceiling, mirror the venue-side status and push an
// edit when the stop changed and the resend cooldown allows it. Transient
// venue failures skip the rest of the cycle; the next tick retries naturally.
func (m *OrderLifecycleManager) Reconcile(ctx context.Context, currentPrice float64) error {
	if m.state.Terminal() {
		return nil
	}
	if m.state != StateLive {
		return fmt.Errorf("reconcile called in state %q", m.state)
	}
	if err := CheckPrice(currentPrice); err != nil {
		return err
	}
	m.setState(StateAdjusting)

	m.recompute(currentPrice)

	if m.intent.Risk > m.riskCeiling {
		m.logger.Warn("Stop loss too wide, cancelling order",
			zap.Float64("risk", m.intent.Risk),
			zap.Float64("ceiling", m.riskCeiling))
		// Best effort: the decision to stop managing the order stands
		// even if the venue-side cancel fails.
		if err := m.vn.CancelAllOrders(ctx, m.spec.Instrument); err != nil {
			m.logger.Warn("Cancel-all failed", zap.Error(err))
		}
		m.terminate(StateCanceled, OutcomeCanceledStopTooWide, "risk ceiling exceeded")
		return nil
	}

	status, err := m.vn.FetchOrderStatus(ctx, m.spec.Instrument, m.remote.VenueOrderID)
	if err != nil {
		if venue.IsTransient(err) {
			m.logger.Warn("Status fetch failed, skipping cycle", zap.Error(err))
			m.setState(StateLive)
			return nil
		}
		m.logger.Warn("Order status lost", zap.Error(err))
		m.terminate(StateCanceled, OutcomeCanceledStatusLost, "status fetch rejected")
		return nil
	}
	m.remote.Status = status

	if !status.Live() {
		m.logger.Info("Order left the venue's book", zap.String("status", string(status)))
		switch status {
		case venue.StatusFilled:
			m.terminate(StateFilled, OutcomeFilled, "order filled")
		case venue.StatusRejected:
			m.terminate(StateRejected, OutcomeCanceledStatusLost, "order rejected by venue")
		default:
			m.terminate(StateCanceled, OutcomeCanceledStatusLost, "order no longer open")
		}
		return nil
	}

	if m.intent.StopLoss != m.lastSent && m.now().Sub(m.remote.LastSyncedAt) >= m.resendDelay {
		if err := m.pushEdit(ctx); err != nil {
			return err
		}
		if m.state.Terminal() {
			return nil
		}
	}

	m.setState(StateLive)
	return nil
}

// pushEdit resends the latest computed values to the venue. Intermediate
// values computed during the cooldown are dropped, never queued.
func (m *OrderLifecycleManager) pushEdit(ctx context.Context) error {
	err := m.vn.EditOrder(ctx, venue.OrderUpdate{
		Instrument: m.spec.Instrument,
		OrderID:    m.remote.VenueOrderID,
		Size:       m.intent.Size,
		StopLoss:   m.intent.StopLoss,
		TakeProfit: m.intent.TakeProfit,
	})
	if err != nil {
		if venue.IsTransient(err) {
			// Values stay dirty; the next cycle retries.
			m.logger.Warn("Order edit failed, will retry next cycle", zap.Error(err))
			return nil
		}
		m.logger.Warn("Order edit rejected, treating as status loss", zap.Error(err))
		m.terminate(StateCanceled, OutcomeCanceledStatusLost, "edit rejected")
		return nil
	}
	m.lastSent = m.intent.StopLoss
	m.remote.LastSyncedAt = m.now()
	m.logger.Info("Order updated on venue",
		zap.Float64("stop_loss", m.intent.StopLoss),
		zap.Float64("take_profit", m.intent.TakeProfit),
		zap.Float64("size", m.intent.Size))
	m.record("order edited")
	return nil
}

// recompute derives stop, risk, target and size from the current price and
// logs every accepted value change.
func (m *OrderLifecycleManager) recompute(currentPrice float64) {
	prev := m.intent

	stop := RefineStopLoss(currentPrice, m.spec.Direction, m.spec.EntryPrice, prev.StopLoss)
	risk := RiskPercentage(stop, m.spec.EntryPrice)
	target := ProjectTarget(m.spec.EntryPrice, m.spec.Direction, risk)
	size := PositionSize(risk, m.baseSize)

	m.intent.StopLoss = stop
	m.intent.Risk = risk
	m.intent.TakeProfit = target
	m.intent.Size = size

	if stop != prev.StopLoss || target != prev.TakeProfit || size != prev.Size {
		m.logger.Info("Order values changed",
			zap.Float64("price", currentPrice),
			zap.Float64("stop_loss", stop),
			zap.Float64("take_profit", target),
			zap.Float64("size", size),
			zap.Float64("risk", risk))
		m.record("values changed")
	}
}

// setState logs the per-cycle Live<->Adjusting hops at debug level; they
// occur on every reconcile and carry no note or journal entry.
func (m *OrderLifecycleManager) setState(next State) {
	m.logger.Debug("Lifecycle transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)))
	m.state = next
}

func (m *OrderLifecycleManager) transition(next State, note string) {
	m.logger.Info("Lifecycle transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)),
		zap.String("note", note))
	m.state = next
	m.record(note)
}

func (m *OrderLifecycleManager) terminate(next State, outcome Outcome, note string) {
	m.transition(next, note)
	m.result = &LifecycleResult{Outcome: outcome, At: m.now()}
}

func (m *OrderLifecycleManager) record(note string) {
	m.rec.Record(Event{
		At:         m.now(),
		Instrument: m.spec.Instrument,
		State:      m.state,
		Note:       note,
		OrderID:    m.remote.VenueOrderID,
		StopLoss:   m.intent.StopLoss,
		TakeProfit: m.intent.TakeProfit,
		Size:       m.intent.Size,
		Risk:       m.intent.Risk,
	})
}
