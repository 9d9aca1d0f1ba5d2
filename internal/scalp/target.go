package scalp

import "github.com/rayvtoll/scalp-assist/internal/venue"

// rewardRiskMultiple is the fixed reward:risk ratio used to derive the
// take-profit from the stop distance.
const rewardRiskMultiple = 2

// ProjectTarget derives the take-profit level from the risk percentage, on
// the opposite side of the entry from the stop. Unlike the stop it carries
// no ratchet and moves freely with the risk.
func ProjectTarget(entryPrice float64, dir venue.Direction, riskPercentage float64) float64 {
	if dir == venue.DirectionShort {
		return RoundPrice(entryPrice * (1 - rewardRiskMultiple*riskPercentage))
	}
	return RoundPrice(entryPrice * (1 + rewardRiskMultiple*riskPercentage))
}
