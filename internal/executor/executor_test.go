package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"asset-manager/config"
	"asset-manager/internal/events"
	"asset-manager/internal/manager"
)

type fakeClient struct {
	prices      map[string]float64
	priceErr    error
	orderErr    error
	orderID     string
	placed      []OrderRequest
	stopUpdates []float64
}

func (f *fakeClient) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	if f.orderErr != nil {
		return "", f.orderErr
	}
	f.placed = append(f.placed, req)
	return f.orderID, nil
}

func (f *fakeClient) UpdateStopLoss(_ context.Context, symbol string, newStop float64, source, reason string) error {
	if f.orderErr != nil {
		return f.orderErr
	}
	f.stopUpdates = append(f.stopUpdates, newStop)
	return nil
}

func (f *fakeClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[symbol], nil
}

type fakeValuer struct{ value float64 }

func (f fakeValuer) TotalValue() float64 { return f.value }

type fakeConfig struct{ riskPct float64 }

func (f fakeConfig) Config() config.ManagerConfig {
	return config.ManagerConfig{RiskPerTrade: f.riskPct}
}

func newTestExecutor(client *fakeClient, store *manager.ActionStore, value float64) *Executor {
	return New(client, store, fakeValuer{value: value}, fakeConfig{riskPct: 1.5},
		events.NewEventBus(), nil, zerolog.Nop())
}

func TestExecuteBuyBoundsQuantity(t *testing.T) {
	client := &fakeClient{prices: map[string]float64{"BTCUSDT": 100}, orderID: "ord-1"}
	store := manager.NewActionStore()
	// portfolio 10000, risk 1.5% -> 150 at risk, stop distance 5 -> size 30.
	// amount 1000 at price 100 bounds quantity to 10.
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionRebalance, "BTCUSDT", manager.OpBuy, 1000, "test", manager.PriorityHigh)
	store.Add(a)

	summary := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if summary.Executed != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 executed", summary)
	}
	if len(client.placed) != 1 {
		t.Fatalf("expected 1 order placed, got %d", len(client.placed))
	}

	req := client.placed[0]
	if req.Side != "BUY" || req.OrderType != "MARKET" {
		t.Errorf("unexpected order %+v", req)
	}
	if math.Abs(req.Quantity-10) > 1e-9 {
		t.Errorf("quantity = %v, want bounded 10", req.Quantity)
	}
	if math.Abs(req.StopLoss-95) > 1e-9 {
		t.Errorf("stop loss = %v, want 95", req.StopLoss)
	}
	if req.Source != "ASSET_MANAGER" {
		t.Errorf("source = %q, want ASSET_MANAGER", req.Source)
	}
	if store.IsPending(a.ID) {
		t.Error("executed action should no longer be pending")
	}
}

func TestExecuteBuyUsesRiskSizeWhenSmaller(t *testing.T) {
	client := &fakeClient{prices: map[string]float64{"BTCUSDT": 100}, orderID: "ord-1"}
	store := manager.NewActionStore()
	// risk size 30 is below amount/price = 100, so the risk size wins.
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionPositionSizing, "BTCUSDT", manager.OpBuy, 10000, "test", manager.PriorityMedium)
	store.Add(a)

	e.ExecuteActions(context.Background(), []manager.Action{*a})
	if len(client.placed) != 1 {
		t.Fatalf("expected 1 order placed, got %d", len(client.placed))
	}
	if math.Abs(client.placed[0].Quantity-30) > 1e-9 {
		t.Errorf("quantity = %v, want risk-based 30", client.placed[0].Quantity)
	}
}

func TestPriceLookupFailsClosed(t *testing.T) {
	client := &fakeClient{priceErr: errors.New("service unavailable")}
	store := manager.NewActionStore()
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionProfitTaking, "ETHUSDT", manager.OpPartialSell, 500, "test", manager.PriorityHigh)
	store.Add(a)

	summary := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if summary.Failed != 1 || summary.Executed != 0 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}
	if len(client.placed) != 0 {
		t.Error("no order should be placed on price lookup failure")
	}
	if !store.IsPending(a.ID) {
		t.Error("failed action should remain pending")
	}
}

func TestBatchContinuesAfterFailure(t *testing.T) {
	client := &fakeClient{prices: map[string]float64{"SOLUSDT": 50}, orderID: "ord-2"}
	store := manager.NewActionStore()
	e := newTestExecutor(client, store, 10000)

	bad := manager.NewAction(manager.ActionRiskAdjustment, "SOLUSDT", manager.OpAdjustStop, 0, "test", manager.PriorityHigh)
	// AdjustStop without a stop price fails.
	good := manager.NewAction(manager.ActionRiskAdjustment, "SOLUSDT", manager.OpSell, 500, "test", manager.PriorityHigh)
	store.Add(bad)
	store.Add(good)

	summary := e.ExecuteActions(context.Background(), []manager.Action{*bad, *good})
	if summary.Failed != 1 || summary.Executed != 1 {
		t.Fatalf("summary = %+v, want 1 failed 1 executed", summary)
	}
	if math.Abs(client.placed[0].Quantity-10) > 1e-9 {
		t.Errorf("sell quantity = %v, want 10", client.placed[0].Quantity)
	}
}

func TestExecutedActionNotRedispatched(t *testing.T) {
	client := &fakeClient{prices: map[string]float64{"BTCUSDT": 100}, orderID: "ord-3"}
	store := manager.NewActionStore()
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionRebalance, "BTCUSDT", manager.OpSell, 1000, "test", manager.PriorityHigh)
	store.Add(a)

	first := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if first.Executed != 1 {
		t.Fatalf("first dispatch should execute, got %+v", first)
	}

	second := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if second.Executed != 0 || second.Failed != 0 {
		t.Fatalf("second dispatch should be a no-op, got %+v", second)
	}
	if len(client.placed) != 1 {
		t.Errorf("expected exactly 1 order placed, got %d", len(client.placed))
	}
}

func TestAdjustStopDispatch(t *testing.T) {
	client := &fakeClient{orderID: "ord-4"}
	store := manager.NewActionStore()
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionProfitTaking, "BTCUSDT", manager.OpAdjustStop, 0, "test", manager.PriorityHigh)
	a.Price = 42500
	store.Add(a)

	summary := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if summary.Executed != 1 {
		t.Fatalf("summary = %+v, want 1 executed", summary)
	}
	if len(client.stopUpdates) != 1 || math.Abs(client.stopUpdates[0]-42500) > 1e-9 {
		t.Errorf("stop updates = %v, want [42500]", client.stopUpdates)
	}
}

func TestUnacknowledgedOrderFails(t *testing.T) {
	client := &fakeClient{prices: map[string]float64{"BTCUSDT": 100}, orderID: ""}
	store := manager.NewActionStore()
	e := newTestExecutor(client, store, 10000)

	a := manager.NewAction(manager.ActionRebalance, "BTCUSDT", manager.OpSell, 1000, "test", manager.PriorityHigh)
	store.Add(a)

	summary := e.ExecuteActions(context.Background(), []manager.Action{*a})
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}
	if !store.IsPending(a.ID) {
		t.Error("unacknowledged action should remain pending")
	}
}
