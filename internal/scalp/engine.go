package scalp

import (
	"context"
	"fmt"
	"time"

	"github.com/rayvtoll/scalp-assist/internal/config"
	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
)

// Engine runs one trigger-and-order lifecycle for a single instrument: it
// waits for the watch level to be crossed, places the contingent order and
// then reconciles it against the venue until a terminal state is reached.
// One Engine instance manages exactly one run; instances share no state.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	vn      venue.Venue
	prices  venue.PriceSource
	watcher *TriggerWatcher
	manager *OrderLifecycleManager

	// Board, when set, renders the cosmetic console price line.
	Board *PriceBoard
}

// NewEngine wires a lifecycle engine from the trade configuration.
func NewEngine(logger *zap.Logger, cfg *config.Config, vn venue.Venue, prices venue.PriceSource, rec Recorder) (*Engine, error) {
	spec, err := NewTriggerSpec(
		cfg.Trade.Instrument,
		venue.Direction(cfg.Trade.Direction),
		cfg.Trade.TriggerPrice,
		cfg.Trade.TriggerOffset,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger spec: %w", err)
	}

	watcher := NewTriggerWatcher(spec, cfg.Trade.StrictTrigger,
		time.Duration(cfg.Trade.TriggerDelay)*time.Second)
	manager := NewOrderLifecycleManager(logger, vn, spec, rec,
		cfg.Trade.BaseSize, cfg.Trade.RiskCeiling,
		time.Duration(cfg.Trade.ResendDelay)*time.Second)

	return &Engine{
		logger:  logger,
		cfg:     cfg,
		vn:      vn,
		prices:  prices,
		watcher: watcher,
		manager: manager,
	}, nil
}

// Run drives the full lifecycle and returns the terminal result. The run is
// a single cooperative loop: each iteration blocks on the next price tick
// and reconciles synchronously before the next tick is fetched, so at most
// one venue call is ever in flight. A create failure is returned as an
// error alongside the aborted result.
func (e *Engine) Run(ctx context.Context) (*LifecycleResult, error) {
	e.preflight(ctx)

	spec := e.manager.spec
	e.logger.Info("Awaiting trigger",
		zap.String("instrument", spec.Instrument),
		zap.String("direction", string(spec.Direction)),
		zap.Float64("trigger_price", spec.TriggerPrice),
		zap.Float64("entry_price", spec.EntryPrice))

	if err := e.awaitTrigger(ctx); err != nil {
		return nil, err
	}

	if delay := e.watcher.DelayRemaining(); delay > 0 {
		e.logger.Info("Trigger cooldown before create", zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	price, err := e.nextValidPrice(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.manager.Create(ctx, price); err != nil {
		return e.manager.Result(), err
	}

	for !e.manager.Terminal() {
		price, err := e.nextValidPrice(ctx)
		if err != nil {
			return nil, err
		}
		e.Board.Order(price, e.manager.Intent())
		if err := e.manager.Reconcile(ctx, price); err != nil {
			return nil, err
		}
	}

	result := e.manager.Result()
	e.logger.Info("Run finished", zap.String("outcome", string(result.Outcome)))
	return result, nil
}

// awaitTrigger consumes ticks until the watch level is crossed.
func (e *Engine) awaitTrigger(ctx context.Context) error {
	for {
		price, err := e.nextValidPrice(ctx)
		if err != nil {
			return err
		}
		e.Board.Watch(price, e.watcher.spec.TriggerPrice)

		ev, err := e.watcher.Observe(price)
		if err != nil {
			e.logger.Debug("Dropping malformed tick", zap.Error(err))
			continue
		}
		if ev != nil {
			e.logger.Info("Trigger fired",
				zap.Float64("price", ev.Price),
				zap.Time("at", ev.At))
			return nil
		}
	}
}

func (e *Engine) nextPrice(ctx context.Context) (float64, error) {
	price, err := e.prices.Next(ctx)
	if err != nil {
		return 0, fmt.Errorf("price stream: %w", err)
	}
	return price, nil
}

// nextValidPrice consumes ticks until one passes validation. Malformed
// ticks are dropped, never fatal.
func (e *Engine) nextValidPrice(ctx context.Context) (float64, error) {
	for {
		price, err := e.nextPrice(ctx)
		if err != nil {
			return 0, err
		}
		if err := CheckPrice(price); err != nil {
			e.logger.Debug("Dropping malformed tick", zap.Error(err))
			continue
		}
		return price, nil
	}
}

// preflight logs the free balance before arming. A failed fetch only skips
// the preflight; the run proceeds.
func (e *Engine) preflight(ctx context.Context) {
	balances, err := e.vn.FetchBalance(ctx)
	if err != nil {
		e.logger.Warn("Balance preflight failed", zap.Error(err))
		return
	}
	if usdt, ok := balances["USDT"]; ok {
		e.logger.Info("Account balance",
			zap.Float64("usdt_free", usdt.Free),
			zap.Float64("usdt_total", usdt.Total))
	}
}
