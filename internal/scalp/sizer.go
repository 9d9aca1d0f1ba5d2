package scalp

// PositionSize maps the risk percentage onto a discrete size tier so that
// tighter stops get proportionally larger size. Tiers are keyed on the risk
// in basis points of the entry price and use half-open (lo, hi] bounds:
//
//	risk <= 25 bps  -> 4x base
//	25 < risk <= 50 -> 3x base
//	50 < risk <= 75 -> 2x base
//	risk > 75 bps   -> 1x base
//
// A zero or negative risk means the stop has not been computed yet; the
// base size is returned unmodified.
func PositionSize(riskPercentage, baseSize float64) float64 {
	if riskPercentage <= 0 {
		return baseSize
	}
	bps := riskPercentage * 10000
	var multiplier float64
	switch {
	case bps <= 25:
		multiplier = 4
	case bps <= 50:
		multiplier = 3
	case bps <= 75:
		multiplier = 2
	default:
		multiplier = 1
	}
	return RoundSize(baseSize * multiplier)
}
