package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"asset-manager/config"
	"asset-manager/internal/events"
	"asset-manager/internal/logging"
	"asset-manager/internal/manager"
	"asset-manager/internal/risk"
)

// Source tag carried on every order this component places.
const orderSource = "ASSET_MANAGER"

// Client is the outbound execution boundary: price lookup, order
// placement, and stop-loss updates implemented by the external
// execution service.
type Client interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	UpdateStopLoss(ctx context.Context, symbol string, newStop float64, source, reason string) error
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderRequest is the payload shape of a market order dispatch.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // BUY or SELL
	Quantity  float64 `json:"quantity"`
	OrderType string  `json:"order_type"`
	StopLoss  float64 `json:"stop_loss,omitempty"`
	Source    string  `json:"source"`
	Reason    string  `json:"reason"`
}

// Store is the slice of the action store the executor needs: atomic
// pending checks and executed-state transitions keyed by id.
type Store interface {
	IsPending(id string) bool
	MarkExecuted(id string) bool
}

// PortfolioValuer supplies the current portfolio value for sizing.
type PortfolioValuer interface {
	TotalValue() float64
}

// ConfigSource supplies the live manager configuration.
type ConfigSource interface {
	Config() config.ManagerConfig
}

// AuditWriter records finished actions for the audit trail. A nil
// writer disables auditing.
type AuditWriter interface {
	RecordAction(ctx context.Context, a manager.Action, status, errMsg string) error
}

// Executor dispatches action batches to the execution boundary,
// strictly sequentially, isolating per-action failures. Price lookups
// fail closed: no order is sized against substituted data.
type Executor struct {
	client   Client
	store    Store
	values   PortfolioValuer
	cfg      ConfigSource
	bus      *events.EventBus
	audit    AuditWriter
	logger   *logging.Logger
	orderLog zerolog.Logger
}

// New creates an executor. audit may be nil.
func New(client Client, store Store, values PortfolioValuer, cfg ConfigSource, bus *events.EventBus, audit AuditWriter, orderLog zerolog.Logger) *Executor {
	return &Executor{
		client:   client,
		store:    store,
		values:   values,
		cfg:      cfg,
		bus:      bus,
		audit:    audit,
		logger:   logging.WithComponent("executor"),
		orderLog: orderLog,
	}
}

// ExecuteActions processes the batch one action at a time. A failed
// action is logged and left pending; the rest of the batch continues.
// An action no longer pending is skipped, so re-submission is a no-op.
func (e *Executor) ExecuteActions(ctx context.Context, actions []manager.Action) manager.Summary {
	var summary manager.Summary

	for _, a := range actions {
		if !e.store.IsPending(a.ID) {
			e.logger.Debug("skipping non-pending action", "action_id", a.ID)
			continue
		}

		err := e.dispatch(ctx, a)
		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, manager.ActionResult{Action: a, Err: err})
			e.logger.WithAction(a.ID, string(a.Type), a.Symbol).Error("action failed", "error", err)
			e.bus.PublishActionFailed(a.ID, string(a.Type), a.Symbol, err.Error())
			e.recordAudit(ctx, a, "failed", err.Error())
			continue
		}

		if !e.store.MarkExecuted(a.ID) {
			// Lost the transition, someone else executed it first.
			continue
		}
		summary.Executed++
		summary.Results = append(summary.Results, manager.ActionResult{Action: a})
		e.logger.WithAction(a.ID, string(a.Type), a.Symbol).Info("action executed",
			"operation", string(a.Operation), "amount", a.Amount)
		e.bus.PublishActionExecuted(a.ID, string(a.Type), a.Symbol, a.Amount)
		e.recordAudit(ctx, a, "executed", "")
	}

	return summary
}

func (e *Executor) dispatch(ctx context.Context, a manager.Action) error {
	switch a.Operation {
	case manager.OpBuy:
		return e.executeBuy(ctx, a)
	case manager.OpSell, manager.OpPartialSell:
		return e.executeSell(ctx, a)
	case manager.OpAdjustStop:
		return e.executeStopAdjust(ctx, a)
	default:
		return fmt.Errorf("unknown operation %q", a.Operation)
	}
}

// executeBuy sizes and places a market buy. Quantity is the lesser of
// the risk-based size and the action amount converted at the looked-up
// price, with a provisional stop five percent below.
func (e *Executor) executeBuy(ctx context.Context, a manager.Action) error {
	price, err := e.client.GetCurrentPrice(ctx, a.Symbol)
	if err != nil {
		return fmt.Errorf("price lookup for %s: %w", a.Symbol, err)
	}
	if price <= 0 {
		return fmt.Errorf("price lookup for %s returned %v", a.Symbol, price)
	}

	stop := price * 0.95
	qty := risk.PositionSize(e.values.TotalValue(), price, stop, e.cfg.Config().RiskPerTrade)
	if bound := a.Amount / price; qty <= 0 || bound < qty {
		qty = bound
	}
	if qty <= 0 {
		return fmt.Errorf("computed zero buy quantity for %s", a.Symbol)
	}

	orderID, err := e.client.PlaceOrder(ctx, OrderRequest{
		Symbol:    a.Symbol,
		Side:      "BUY",
		Quantity:  qty,
		OrderType: "MARKET",
		StopLoss:  stop,
		Source:    orderSource,
		Reason:    a.Reason,
	})
	if err != nil {
		return fmt.Errorf("place buy order for %s: %w", a.Symbol, err)
	}
	if orderID == "" {
		return fmt.Errorf("buy order for %s not acknowledged", a.Symbol)
	}

	e.orderLog.Info().
		Str("order_id", orderID).
		Str("action_id", a.ID).
		Str("symbol", a.Symbol).
		Str("side", "BUY").
		Float64("quantity", qty).
		Float64("price", price).
		Float64("stop_loss", stop).
		Str("reason", a.Reason).
		Msg("order placed")
	return nil
}

func (e *Executor) executeSell(ctx context.Context, a manager.Action) error {
	price, err := e.client.GetCurrentPrice(ctx, a.Symbol)
	if err != nil {
		return fmt.Errorf("price lookup for %s: %w", a.Symbol, err)
	}
	if price <= 0 {
		return fmt.Errorf("price lookup for %s returned %v", a.Symbol, price)
	}

	qty := a.Amount / price
	if qty <= 0 {
		return fmt.Errorf("computed zero sell quantity for %s", a.Symbol)
	}

	orderID, err := e.client.PlaceOrder(ctx, OrderRequest{
		Symbol:    a.Symbol,
		Side:      "SELL",
		Quantity:  qty,
		OrderType: "MARKET",
		Source:    orderSource,
		Reason:    a.Reason,
	})
	if err != nil {
		return fmt.Errorf("place sell order for %s: %w", a.Symbol, err)
	}
	if orderID == "" {
		return fmt.Errorf("sell order for %s not acknowledged", a.Symbol)
	}

	e.orderLog.Info().
		Str("order_id", orderID).
		Str("action_id", a.ID).
		Str("symbol", a.Symbol).
		Str("side", "SELL").
		Float64("quantity", qty).
		Float64("price", price).
		Str("reason", a.Reason).
		Msg("order placed")
	return nil
}

func (e *Executor) executeStopAdjust(ctx context.Context, a manager.Action) error {
	if a.Price <= 0 {
		return fmt.Errorf("stop adjust for %s carries no stop price", a.Symbol)
	}
	if err := e.client.UpdateStopLoss(ctx, a.Symbol, a.Price, orderSource, a.Reason); err != nil {
		return fmt.Errorf("update stop loss for %s: %w", a.Symbol, err)
	}

	e.orderLog.Info().
		Str("action_id", a.ID).
		Str("symbol", a.Symbol).
		Float64("stop_loss", a.Price).
		Str("reason", a.Reason).
		Msg("stop loss updated")
	return nil
}

func (e *Executor) recordAudit(ctx context.Context, a manager.Action, status, errMsg string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordAction(ctx, a, status, errMsg); err != nil {
		e.logger.Warn("audit write failed", "action_id", a.ID, "error", err)
	}
}
