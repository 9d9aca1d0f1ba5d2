package bybit

import (
	"context"
	"time"

	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
)

// PricePoller is the REST fallback price source, polling the market tickers
// endpoint at a fixed interval. Used when the websocket stream is
// unavailable. Long runs read the bid side, short runs the ask side.
type PricePoller struct {
	client     *Client
	instrument string
	dir        venue.Direction
	interval   time.Duration
	logger     *zap.Logger
}

var _ venue.PriceSource = (*PricePoller)(nil)

// NewPricePoller creates a poller over an existing REST client.
func NewPricePoller(client *Client, instrument string, dir venue.Direction, interval time.Duration, logger *zap.Logger) *PricePoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &PricePoller{
		client:     client,
		instrument: instrument,
		dir:        dir,
		interval:   interval,
		logger:     logger,
	}
}

// Next waits one polling interval and returns the current top of book.
// Transient venue failures are retried on the following interval.
func (p *PricePoller) Next(ctx context.Context) (float64, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		t, err := p.client.GetTicker(ctx, p.instrument)
		if err != nil {
			if venue.IsTransient(err) {
				p.logger.Warn("Ticker poll failed, retrying", zap.Error(err))
				continue
			}
			return 0, err
		}

		price := t.Bid
		if p.dir == venue.DirectionShort {
			price = t.Ask
		}
		if price <= 0 {
			price = t.Last
		}
		if price > 0 {
			return price, nil
		}
	}
}
