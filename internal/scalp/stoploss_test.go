package scalp

import (
	"math"
	"testing"

	"github.com/rayvtoll/scalp-assist/internal/venue"
	"github.com/stretchr/testify/assert"
)

func TestRefineStopLoss_Initial(t *testing.T) {
	testCases := []struct {
		name         string
		direction    venue.Direction
		currentPrice float64
		entryPrice   float64
		expected     float64
	}{
		{
			name:         "Short takes current price when above the offset",
			direction:    venue.DirectionShort,
			currentPrice: 42500,
			entryPrice:   42180,
			expected:     42500,
		},
		{
			name:         "Short takes the 0.25% offset when current is closer",
			direction:    venue.DirectionShort,
			currentPrice: 42191,
			entryPrice:   42180,
			expected:     42285.5, // 42180 * 1.0025 rounded to tick
		},
		{
			name:         "Long takes the 0.25% offset when current is closer",
			direction:    venue.DirectionLong,
			currentPrice: 42170,
			entryPrice:   42180,
			expected:     42074.6, // 42180 * 0.9975 rounded to tick
		},
		{
			name:         "Long takes current price when below the offset",
			direction:    venue.DirectionLong,
			currentPrice: 42000,
			entryPrice:   42180,
			expected:     42000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RefineStopLoss(tc.currentPrice, tc.direction, tc.entryPrice, 0)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestRefineStopLoss_Ratchet(t *testing.T) {
	t.Run("Short stop only moves up", func(t *testing.T) {
		stop := RefineStopLoss(42191, venue.DirectionShort, 42180, 0)
		assert.Equal(t, 42285.5, stop)

		// Price below the stop: no-op, same value returned.
		assert.Equal(t, stop, RefineStopLoss(42200, venue.DirectionShort, 42180, stop))
		assert.Equal(t, stop, RefineStopLoss(42100, venue.DirectionShort, 42180, stop))

		// Price through the stop pushes it up.
		moved := RefineStopLoss(42300, venue.DirectionShort, 42180, stop)
		assert.Equal(t, 42300.0, moved)

		// And it never comes back down.
		assert.Equal(t, moved, RefineStopLoss(42250, venue.DirectionShort, 42180, moved))
	})

	t.Run("Long stop only moves down", func(t *testing.T) {
		stop := RefineStopLoss(42170, venue.DirectionLong, 42180, 0)
		assert.Equal(t, 42074.6, stop)

		assert.Equal(t, stop, RefineStopLoss(42100, venue.DirectionLong, 42180, stop))

		moved := RefineStopLoss(42050, venue.DirectionLong, 42180, stop)
		assert.Equal(t, 42050.0, moved)

		assert.Equal(t, moved, RefineStopLoss(42150, venue.DirectionLong, 42180, moved))
	})
}

// The ratchet is monotonic for any price sequence: a short's stop never
// decreases, a long's never increases, so the stop never retreats toward
// the entry once set.
func TestRefineStopLoss_MonotonicOverSequence(t *testing.T) {
	prices := []float64{42191, 42240, 42188, 42310, 42150, 42410, 42409.9, 42500, 42020}

	prev := 0.0
	for _, p := range prices {
		next := RefineStopLoss(p, venue.DirectionShort, 42180, prev)
		if prev != 0 {
			assert.GreaterOrEqual(t, next, prev, "short stop moved down at price %v", p)
		}
		prev = next
	}

	prev = 0.0
	for _, p := range prices {
		next := RefineStopLoss(p, venue.DirectionLong, 42180, prev)
		if prev != 0 {
			assert.LessOrEqual(t, next, prev, "long stop moved up at price %v", p)
		}
		prev = next
	}
}

func TestRiskPercentage(t *testing.T) {
	risk := RiskPercentage(42285.5, 42180)
	assert.InDelta(t, 0.0025, risk, 0.0001)
	assert.GreaterOrEqual(t, risk, 0.0)
	assert.Less(t, risk, 1.0)

	// Reported as a non-negative fraction on either side of the entry.
	assert.Equal(t, RiskPercentage(42074.5, 42180), RiskPercentage(42285.5, 42180))
}

func TestProjectTarget(t *testing.T) {
	risk := RiskPercentage(42285.5, 42180)

	short := ProjectTarget(42180, venue.DirectionShort, risk)
	assert.Equal(t, 41969.0, short)

	long := ProjectTarget(42180, venue.DirectionLong, risk)
	assert.Equal(t, 42391.0, long)
}

// The take-profit always sits on the opposite side of the entry from the
// stop, at twice the stop distance, up to tick rounding.
func TestTargetRiskConsistency(t *testing.T) {
	entries := []float64{42180, 30000, 61999.5}
	currents := []float64{42191, 30600, 61000}

	for i, entry := range entries {
		current := currents[i]
		for _, dir := range []venue.Direction{venue.DirectionLong, venue.DirectionShort} {
			stop := RefineStopLoss(current, dir, entry, 0)
			risk := RiskPercentage(stop, entry)
			target := ProjectTarget(entry, dir, risk)

			stopDist := math.Abs(stop - entry)
			targetDist := math.Abs(target - entry)
			assert.InDelta(t, 2*stopDist, targetDist, 0.1,
				"direction %s entry %v", dir, entry)

			// Stop and target bracket the entry.
			if dir == venue.DirectionLong {
				assert.Less(t, stop, entry)
				assert.Greater(t, target, entry)
			} else {
				assert.Greater(t, stop, entry)
				assert.Less(t, target, entry)
			}
		}
	}
}
