package policy

// Position represents one open portfolio position as reported by the
// surrounding client. Positions are owned by the Engine and replaced
// wholesale on every snapshot update.
type Position struct {
	Symbol          string  `json:"symbol"`
	AssetClass      string  `json:"asset_class"`
	RiskBucket      string  `json:"risk_bucket"`
	EntryPrice      float64 `json:"entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	Size            float64 `json:"size"` // position value in quote currency
	AllocationPct   float64 `json:"allocation_pct"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	UnrealizedPLPct float64 `json:"unrealized_pl_pct"`
	ProfitZone      string  `json:"profit_zone"`
	DaysHeld        int     `json:"days_held"`
	Volatility      float64 `json:"volatility"`
	Correlation     float64 `json:"correlation"`
	RiskScore       float64 `json:"risk_score"` // 0..1 composite of volatility, correlation, size
}

// Suggested operations carried on profit-securing candidates.
const (
	SecurePartialSell = "PartialSell"
	SecureAdjustStop  = "AdjustStop"
)

// Rebalancing directions.
const (
	DirectionBuy  = "Buy"
	DirectionSell = "Sell"
)

// HealthReport summarizes portfolio risk posture. Recomputed from the
// current snapshot on every call, never cached across ticks.
type HealthReport struct {
	RiskHealth       float64 `json:"risk_health"` // 0..100, higher is healthier
	AvgRiskScore     float64 `json:"avg_risk_score"`
	Diversification  int     `json:"diversification"`    // distinct asset classes held
	MaxAllocationPct float64 `json:"max_allocation_pct"` // concentration indicator
	TotalValue       float64 `json:"total_value"`
	PositionCount    int     `json:"position_count"`
}

// ProfitCandidate is a per-position profit-securing suggestion. Threshold
// filtering against the configured profit-taking threshold happens in the
// generator, not here.
type ProfitCandidate struct {
	Symbol         string  `json:"symbol"`
	Operation      string  `json:"operation"` // SecurePartialSell or SecureAdjustStop
	AmountToSecure float64 `json:"amount_to_secure"`
	StopPrice      float64 `json:"stop_price,omitempty"` // set for SecureAdjustStop
	GainPct        float64 `json:"gain_pct"`
}

// RebalanceSuggestion is a per-symbol allocation correction. Deviation
// filtering against the configured rebalance threshold happens in the
// generator.
type RebalanceSuggestion struct {
	Symbol       string  `json:"symbol"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	Deviation    float64 `json:"deviation"`
	Amount       float64 `json:"amount"`
	Direction    string  `json:"direction"`
	HighPriority bool    `json:"high_priority"`
}
