package manager

import (
	"fmt"
	"time"

	"asset-manager/config"
	"asset-manager/internal/policy"
	"asset-manager/internal/risk"
)

// Gains at or above this percentage make a profit-taking action High
// priority.
const urgentGainPct = 20.0

// Risk-health floor below which the risk generator engages.
const riskHealthFloor = 60.0

// Positions above this risk score are risk-reduction candidates.
const riskScoreCutoff = 0.7

// At most this many positions are reduced per tick.
const maxRiskReductions = 3

// Fraction of position size sold by a risk-reduction action.
const riskReductionFraction = 0.30

// generateProfitTakingActions turns policy candidates at or above the
// configured threshold into actions. Boundary is inclusive.
func (m *Manager) generateProfitTakingActions(cfg config.ManagerConfig) []*Action {
	var actions []*Action
	for _, c := range m.engine.ProfitSecuringCandidates() {
		if c.GainPct < cfg.ProfitTakingThreshold {
			continue
		}

		priority := PriorityMedium
		if c.GainPct >= urgentGainPct {
			priority = PriorityHigh
		}

		var a *Action
		switch c.Operation {
		case policy.SecureAdjustStop:
			a = NewAction(ActionProfitTaking, c.Symbol, OpAdjustStop, 0,
				fmt.Sprintf("secure %.1f%% gain by tightening stop", c.GainPct), priority)
			a.Price = c.StopPrice
		default:
			a = NewAction(ActionProfitTaking, c.Symbol, OpPartialSell, c.AmountToSecure,
				fmt.Sprintf("secure %.1f%% gain by partial sell", c.GainPct), priority)
		}
		actions = append(actions, a)
	}
	return actions
}

// generateRebalanceActions turns allocation deviations at or above the
// configured threshold into Buy/Sell actions. Skipped entirely while the
// portfolio-wide rebalance cooldown has not elapsed.
func (m *Manager) generateRebalanceActions(cfg config.ManagerConfig, now time.Time) []*Action {
	m.mu.RLock()
	last := m.lastRebalance
	m.mu.RUnlock()

	if !last.IsZero() && now.Sub(last) < cfg.RebalanceCooldown() {
		m.logger.Debug("rebalance skipped, cooldown active",
			"last_rebalance", last.Format(time.RFC3339))
		return nil
	}

	var actions []*Action
	for _, s := range m.engine.RebalancingSuggestions(cfg.TargetAllocations) {
		if s.Deviation < cfg.RebalanceThreshold {
			continue
		}

		priority := PriorityMedium
		if s.HighPriority {
			priority = PriorityHigh
		}
		op := OpSell
		if s.Direction == policy.DirectionBuy {
			op = OpBuy
		}
		actions = append(actions, NewAction(ActionRebalance, s.Symbol, op, s.Amount,
			fmt.Sprintf("rebalance from %.1f%% to %.1f%% target", s.CurrentPct, s.TargetPct), priority))
	}
	return actions
}

// generateRiskAdjustmentActions sells down the riskiest positions when
// portfolio health drops below the floor. Up to three positions above
// the risk cutoff are reduced, in encounter order, by 30% each.
func (m *Manager) generateRiskAdjustmentActions() []*Action {
	health := m.engine.PortfolioHealth()
	if health.RiskHealth >= riskHealthFloor {
		return nil
	}

	var actions []*Action
	for _, p := range m.engine.Positions() {
		if len(actions) >= maxRiskReductions {
			break
		}
		if p.RiskScore <= riskScoreCutoff {
			continue
		}
		actions = append(actions, NewAction(ActionRiskAdjustment, p.Symbol, OpSell,
			p.Size*riskReductionFraction, "automated risk reduction", PriorityHigh))
	}
	return actions
}

// generateSignalAction sizes an entry or exit for a strong external
// signal. Signals at or below 0.7 strength and Hold signals produce
// nothing; only strength above 0.8 acts.
func (m *Manager) generateSignalAction(sig Signal) *Action {
	if sig.Hold() || sig.Strength <= 0.7 {
		return nil
	}
	if sig.Strength <= 0.8 {
		return nil
	}
	if sig.Price <= 0 {
		return nil
	}

	totalValue := m.engine.PortfolioHealth().TotalValue
	size := risk.PositionSize(totalValue, sig.Price, sig.Price*0.95, risk.DefaultRiskPerTrade)
	if size <= 0 {
		return nil
	}

	op := OpSell
	if sig.Bullish() {
		op = OpBuy
	}
	// Amount is always quote value; convert the sized quantity.
	return NewAction(ActionPositionSizing, sig.Symbol, op, size*sig.Price,
		fmt.Sprintf("%s signal at strength %.2f", sig.Direction, sig.Strength), PriorityMedium)
}
