package manager

import (
	"time"

	"github.com/google/uuid"
)

// ActionType categorizes what a portfolio action is for.
type ActionType string

const (
	ActionRebalance      ActionType = "Rebalance"
	ActionProfitTaking   ActionType = "ProfitTaking"
	ActionPositionSizing ActionType = "PositionSizing"
	ActionRiskAdjustment ActionType = "RiskAdjustment"
)

// Operation is the concrete order operation an action requests.
type Operation string

const (
	OpBuy         Operation = "Buy"
	OpSell        Operation = "Sell"
	OpPartialSell Operation = "PartialSell"
	OpAdjustStop  Operation = "AdjustStop"
)

// Priority governs when an action executes: High within the tick that
// created it, Medium in a delayed batch, Low only on manual trigger.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Action is a single proposed or executed portfolio operation. Amount is
// a quote-currency value; Price carries the new stop for AdjustStop.
type Action struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Symbol     string     `json:"symbol"`
	Operation  Operation  `json:"operation"`
	Amount     float64    `json:"amount"`
	Price      float64    `json:"price,omitempty"`
	Reason     string     `json:"reason"`
	Priority   Priority   `json:"priority"`
	Executed   bool       `json:"executed"`
	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// NewAction creates a pending action with a fresh id.
func NewAction(t ActionType, symbol string, op Operation, amount float64, reason string, priority Priority) *Action {
	return &Action{
		ID:        uuid.NewString(),
		Type:      t,
		Symbol:    symbol,
		Operation: op,
		Amount:    amount,
		Reason:    reason,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// Signal is an externally supplied trading signal. Direction carries the
// signal type (StrongBuy, Buy, Hold, Sell, StrongSell).
type Signal struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Strength  float64 `json:"strength"` // 0..1
	Price     float64 `json:"price"`
}

// Bullish reports whether the signal argues for adding exposure.
func (s Signal) Bullish() bool {
	return s.Direction == "Buy" || s.Direction == "StrongBuy"
}

// Hold reports whether the signal carries no directional intent.
func (s Signal) Hold() bool {
	return s.Direction == "Hold" || s.Direction == ""
}
