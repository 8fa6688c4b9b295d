package risk

import "math"

// DefaultRiskPerTrade is the risk percentage applied to strong
// signal-driven entries.
const DefaultRiskPerTrade = 1.5

// PositionSize computes a risk-based position size in base units:
// the quote amount put at risk (portfolioValue x riskPct/100) divided
// by the per-unit distance between entry and stop. Returns 0 on
// degenerate inputs rather than guessing.
func PositionSize(portfolioValue, entryPrice, stopLoss, riskPct float64) float64 {
	if portfolioValue <= 0 || entryPrice <= 0 || stopLoss <= 0 || riskPct <= 0 {
		return 0
	}

	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return 0
	}

	riskAmount := portfolioValue * (riskPct / 100)
	return riskAmount / riskPerUnit
}
