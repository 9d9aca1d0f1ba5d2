package scalp

import (
	"math"

	"github.com/rayvtoll/scalp-assist/internal/venue"
)

// stopOffset keeps the initial stop 0.25% away from the entry so the order
// cannot be stopped out at the entry price itself.
const stopOffset = 0.0025

// RefineStopLoss computes the protective stop for the current price, rounded
// to tick precision. prev is the previously computed stop, or zero when no
// stop has been set yet.
//
// The stop ratchets in one direction only: a short's stop is pushed up while
// price trades above it, a long's stop is pushed down while price trades
// below it, and it never retreats toward the entry. Risk is therefore
// monotonically non-decreasing; the lifecycle manager's risk ceiling is what
// terminates a runaway stop. When the ratchet condition is not met the
// previous value is returned unchanged, so callers can detect a no-op by
// value equality.
func RefineStopLoss(currentPrice float64, dir venue.Direction, entryPrice, prev float64) float64 {
	if dir == venue.DirectionShort {
		candidate := RoundPrice(math.Max(currentPrice, entryPrice*(1+stopOffset)))
		if prev == 0 || currentPrice > prev {
			return candidate
		}
		return prev
	}

	candidate := RoundPrice(math.Min(currentPrice, entryPrice*(1-stopOffset)))
	if prev == 0 || currentPrice < prev {
		return candidate
	}
	return prev
}

// RiskPercentage returns the stop distance as a non-negative fraction of
// the entry price.
func RiskPercentage(stopLoss, entryPrice float64) float64 {
	return math.Abs(stopLoss-entryPrice) / entryPrice
}
