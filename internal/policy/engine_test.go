package policy

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUpdatePositionsReplacesSnapshot(t *testing.T) {
	e := NewEngine()
	e.UpdatePositions([]Position{
		{Symbol: "BTCUSDT", Size: 1000},
		{Symbol: "ETHUSDT", Size: 500},
	})
	e.UpdatePositions([]Position{
		{Symbol: "SOLUSDT", Size: 300},
	})

	got := e.Positions()
	if len(got) != 1 {
		t.Fatalf("expected 1 position after swap, got %d", len(got))
	}
	if got[0].Symbol != "SOLUSDT" {
		t.Errorf("stale symbols should be dropped, got %s", got[0].Symbol)
	}
}

func TestPortfolioHealth(t *testing.T) {
	tests := []struct {
		name           string
		positions      []Position
		wantHealth     float64
		wantDiversity  int
		wantMaxAlloc   float64
		wantAvgRisk    float64
		wantTotalValue float64
	}{
		{
			name:       "empty portfolio is fully healthy",
			positions:  nil,
			wantHealth: 100,
		},
		{
			name: "low risk no concentration penalty",
			positions: []Position{
				{Symbol: "BTCUSDT", AssetClass: "crypto", AllocationPct: 20, RiskScore: 0.2, Size: 2000},
				{Symbol: "AAPL", AssetClass: "equity", AllocationPct: 20, RiskScore: 0.4, Size: 2000},
			},
			// 100 - 0.3*60 = 82, max allocation under 25 so no penalty
			wantHealth:     82,
			wantDiversity:  2,
			wantMaxAlloc:   20,
			wantAvgRisk:    0.3,
			wantTotalValue: 4000,
		},
		{
			name: "concentration penalty applied",
			positions: []Position{
				{Symbol: "BTCUSDT", AssetClass: "crypto", AllocationPct: 40, RiskScore: 0.5, Size: 4000},
				{Symbol: "ETHUSDT", AssetClass: "crypto", AllocationPct: 10, RiskScore: 0.5, Size: 1000},
			},
			// 100 - 0.5*60 - (40-25) = 55
			wantHealth:     55,
			wantDiversity:  1,
			wantMaxAlloc:   40,
			wantAvgRisk:    0.5,
			wantTotalValue: 5000,
		},
		{
			name: "score clamped at zero",
			positions: []Position{
				{Symbol: "XYZUSDT", AssetClass: "crypto", AllocationPct: 90, RiskScore: 1.0, Size: 9000},
			},
			// 100 - 60 - 65 would be negative
			wantHealth:     0,
			wantDiversity:  1,
			wantMaxAlloc:   90,
			wantAvgRisk:    1.0,
			wantTotalValue: 9000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			e.UpdatePositions(tt.positions)

			got := e.PortfolioHealth()
			if !almostEqual(got.RiskHealth, tt.wantHealth) {
				t.Errorf("RiskHealth = %v, want %v", got.RiskHealth, tt.wantHealth)
			}
			if got.Diversification != tt.wantDiversity {
				t.Errorf("Diversification = %d, want %d", got.Diversification, tt.wantDiversity)
			}
			if !almostEqual(got.MaxAllocationPct, tt.wantMaxAlloc) {
				t.Errorf("MaxAllocationPct = %v, want %v", got.MaxAllocationPct, tt.wantMaxAlloc)
			}
			if !almostEqual(got.AvgRiskScore, tt.wantAvgRisk) {
				t.Errorf("AvgRiskScore = %v, want %v", got.AvgRiskScore, tt.wantAvgRisk)
			}
			if !almostEqual(got.TotalValue, tt.wantTotalValue) {
				t.Errorf("TotalValue = %v, want %v", got.TotalValue, tt.wantTotalValue)
			}
		})
	}
}

func TestProfitSecuringCandidates(t *testing.T) {
	e := NewEngine()
	e.UpdatePositions([]Position{
		// losing position, no candidate
		{Symbol: "DOGEUSDT", UnrealizedPLPct: -5, Size: 1000},
		// calm winner, partial sell of a quarter
		{Symbol: "BTCUSDT", UnrealizedPLPct: 12, Size: 4000, Volatility: 0.3, EntryPrice: 40000, CurrentPrice: 44800},
		// volatile winner, stop tighten
		{Symbol: "SOLUSDT", UnrealizedPLPct: 8, Size: 2000, Volatility: 0.8, EntryPrice: 100, CurrentPrice: 108},
		// volatile winner where 95% of current is below entry, stop floored at entry
		{Symbol: "AVAXUSDT", UnrealizedPLPct: 2, Size: 1000, Volatility: 0.9, EntryPrice: 50, CurrentPrice: 51},
	})

	candidates := e.ProfitSecuringCandidates()
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	bySymbol := make(map[string]ProfitCandidate)
	for _, c := range candidates {
		bySymbol[c.Symbol] = c
	}

	btc := bySymbol["BTCUSDT"]
	if btc.Operation != SecurePartialSell {
		t.Errorf("BTCUSDT operation = %s, want %s", btc.Operation, SecurePartialSell)
	}
	if !almostEqual(btc.AmountToSecure, 1000) {
		t.Errorf("BTCUSDT amount = %v, want 1000", btc.AmountToSecure)
	}
	if !almostEqual(btc.GainPct, 12) {
		t.Errorf("BTCUSDT gain = %v, want 12", btc.GainPct)
	}

	sol := bySymbol["SOLUSDT"]
	if sol.Operation != SecureAdjustStop {
		t.Errorf("SOLUSDT operation = %s, want %s", sol.Operation, SecureAdjustStop)
	}
	if !almostEqual(sol.StopPrice, 108*0.95) {
		t.Errorf("SOLUSDT stop = %v, want %v", sol.StopPrice, 108*0.95)
	}

	avax := bySymbol["AVAXUSDT"]
	if !almostEqual(avax.StopPrice, 50) {
		t.Errorf("AVAXUSDT stop should be floored at entry, got %v", avax.StopPrice)
	}
}

func TestRebalancingSuggestions(t *testing.T) {
	e := NewEngine()
	e.UpdatePositions([]Position{
		{Symbol: "BTCUSDT", AllocationPct: 10, Size: 1000},
		{Symbol: "ETHUSDT", AllocationPct: 30, Size: 3000},
		{Symbol: "SOLUSDT", AllocationPct: 60, Size: 6000},
	})
	targets := map[string]float64{
		"BTCUSDT": 6,  // over target by 4, sell
		"ETHUSDT": 36, // under target by 6, buy, high priority
	}

	suggestions := e.RebalancingSuggestions(targets)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}

	bySymbol := make(map[string]RebalanceSuggestion)
	for _, s := range suggestions {
		bySymbol[s.Symbol] = s
	}

	btc := bySymbol["BTCUSDT"]
	if btc.Direction != DirectionSell {
		t.Errorf("over-target position should sell, got %s", btc.Direction)
	}
	if !almostEqual(btc.Deviation, 4) {
		t.Errorf("BTCUSDT deviation = %v, want 4", btc.Deviation)
	}
	if !almostEqual(btc.Amount, 400) {
		t.Errorf("BTCUSDT amount = %v, want 400", btc.Amount)
	}
	if btc.HighPriority {
		t.Error("4 point deviation should not be high priority")
	}

	eth := bySymbol["ETHUSDT"]
	if eth.Direction != DirectionBuy {
		t.Errorf("under-target position should buy, got %s", eth.Direction)
	}
	if !eth.HighPriority {
		t.Error("6 point deviation should be high priority")
	}
	if !almostEqual(eth.Amount, 600) {
		t.Errorf("ETHUSDT amount = %v, want 600", eth.Amount)
	}
}
