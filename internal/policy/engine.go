package policy

import (
	"sync"

	"asset-manager/internal/logging"
)

// Deviations at or above this many percentage points mark a rebalance
// suggestion as high priority.
const highPriorityDeviation = 5.0

// Positions riding gains in a volatile book get their stop tightened
// instead of being partially sold.
const volatileStopThreshold = 0.6

// Engine holds the current position snapshot and computes portfolio
// health, profit-securing candidates, and rebalancing suggestions on
// demand. All computation is synchronous over the snapshot under a
// read lock; writes replace the snapshot wholesale.
type Engine struct {
	mu        sync.RWMutex
	positions []Position
	logger    *logging.Logger
}

// NewEngine creates a policy engine with an empty snapshot.
func NewEngine() *Engine {
	return &Engine{
		positions: []Position{},
		logger:    logging.WithComponent("policy"),
	}
}

// UpdatePositions replaces the held snapshot. There are no merge
// semantics: symbols absent from the new snapshot are dropped.
func (e *Engine) UpdatePositions(positions []Position) {
	snapshot := make([]Position, len(positions))
	copy(snapshot, positions)

	e.mu.Lock()
	e.positions = snapshot
	e.mu.Unlock()

	e.logger.Debug("position snapshot updated", "count", len(snapshot))
}

// Positions returns a copy of the current snapshot.
func (e *Engine) Positions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, len(e.positions))
	copy(out, e.positions)
	return out
}

// TotalValue returns the combined quote value of the current snapshot.
func (e *Engine) TotalValue() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total float64
	for _, p := range e.positions {
		total += p.Size
	}
	return total
}

// PortfolioHealth computes the current risk-health score and
// diversification/concentration indicators from the live snapshot.
func (e *Engine) PortfolioHealth() HealthReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := HealthReport{
		RiskHealth:    100,
		PositionCount: len(e.positions),
	}
	if len(e.positions) == 0 {
		return report
	}

	classes := make(map[string]struct{})
	var totalRisk float64
	for _, p := range e.positions {
		totalRisk += p.RiskScore
		report.TotalValue += p.Size
		if p.AllocationPct > report.MaxAllocationPct {
			report.MaxAllocationPct = p.AllocationPct
		}
		if p.AssetClass != "" {
			classes[p.AssetClass] = struct{}{}
		}
	}

	report.AvgRiskScore = totalRisk / float64(len(e.positions))
	report.Diversification = len(classes)

	concentrationPenalty := report.MaxAllocationPct - 25
	if concentrationPenalty < 0 {
		concentrationPenalty = 0
	}
	report.RiskHealth = clamp(100-report.AvgRiskScore*60-concentrationPenalty, 0, 100)

	return report
}

// ProfitSecuringCandidates returns one suggestion per position with an
// unrealized gain. Volatile positions get a stop tighten with the stop
// floored at entry; the rest get a partial sell of a quarter of the
// position value.
func (e *Engine) ProfitSecuringCandidates() []ProfitCandidate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var candidates []ProfitCandidate
	for _, p := range e.positions {
		if p.UnrealizedPLPct <= 0 {
			continue
		}

		c := ProfitCandidate{
			Symbol:  p.Symbol,
			GainPct: p.UnrealizedPLPct,
		}
		if p.Volatility > volatileStopThreshold {
			stop := p.CurrentPrice * 0.95
			if stop < p.EntryPrice {
				stop = p.EntryPrice
			}
			c.Operation = SecureAdjustStop
			c.StopPrice = stop
		} else {
			c.Operation = SecurePartialSell
			c.AmountToSecure = p.Size * 0.25
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// RebalancingSuggestions compares current allocations against the given
// targets and returns a corrective suggestion per targeted symbol.
func (e *Engine) RebalancingSuggestions(targets map[string]float64) []RebalanceSuggestion {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var totalValue float64
	current := make(map[string]float64, len(e.positions))
	for _, p := range e.positions {
		totalValue += p.Size
		current[p.Symbol] = p.AllocationPct
	}

	var suggestions []RebalanceSuggestion
	for _, p := range e.positions {
		target, ok := targets[p.Symbol]
		if !ok {
			continue
		}

		deviation := current[p.Symbol] - target
		absDev := deviation
		if absDev < 0 {
			absDev = -absDev
		}

		s := RebalanceSuggestion{
			Symbol:       p.Symbol,
			CurrentPct:   current[p.Symbol],
			TargetPct:    target,
			Deviation:    absDev,
			Amount:       absDev / 100 * totalValue,
			HighPriority: absDev >= highPriorityDeviation,
		}
		if deviation > 0 {
			s.Direction = DirectionSell
		} else {
			s.Direction = DirectionBuy
		}
		suggestions = append(suggestions, s)
	}
	return suggestions
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
