package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"asset-manager/config"
	"asset-manager/internal/events"
	"asset-manager/internal/manager"
	"asset-manager/internal/policy"
)

type stubDispatcher struct {
	store *manager.ActionStore
}

func (d stubDispatcher) ExecuteActions(_ context.Context, actions []manager.Action) manager.Summary {
	var s manager.Summary
	for _, a := range actions {
		if d.store.MarkExecuted(a.ID) {
			s.Executed++
			s.Results = append(s.Results, manager.ActionResult{Action: a})
		}
	}
	return s
}

func newTestServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.ManagerConfig{
		Enabled:               true,
		AutoRebalance:         true,
		AutoProfitTaking:      true,
		MonitorIntervalSecs:   60,
		RebalanceThreshold:    3.0,
		ProfitTakingThreshold: 10.0,
		RiskPerTrade:          1.5,
	}
	engine := policy.NewEngine()
	store := manager.NewActionStore()
	bus := events.NewEventBus()
	mgr := manager.NewManager(cfg, engine, store, bus)
	mgr.SetDispatcher(stubDispatcher{store: store})

	srv := NewServer(config.ServerConfig{}, mgr, nil, nil, bus)
	return srv, mgr
}

func doRequest(srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if running, ok := body["running"].(bool); !ok || running {
		t.Errorf("running = %v, want false", body["running"])
	}
}

func TestSignalRejectedWhileStopped(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/signal", map[string]interface{}{
		"symbol":    "BTCUSDT",
		"direction": "StrongBuy",
		"strength":  0.85,
		"price":     50000,
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSignalBadPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/signal", map[string]interface{}{
		"strength": 0.9,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConfigPatch(t *testing.T) {
	srv, mgr := newTestServer(t)

	w := doRequest(srv, http.MethodPatch, "/api/v1/config", map[string]interface{}{
		"rebalance_threshold": 4.5,
		"auto_rebalance":      false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	cfg := mgr.Config()
	if cfg.RebalanceThreshold != 4.5 {
		t.Errorf("threshold = %v, want 4.5", cfg.RebalanceThreshold)
	}
	if cfg.AutoRebalance {
		t.Error("auto_rebalance should be disabled")
	}
	// Untouched fields keep their values.
	if cfg.ProfitTakingThreshold != 10.0 {
		t.Errorf("profit threshold = %v, want unchanged 10", cfg.ProfitTakingThreshold)
	}
}

func TestPositionsPush(t *testing.T) {
	srv, mgr := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/positions", []map[string]interface{}{
		{"symbol": "BTCUSDT", "size": 5000, "allocation_pct": 50},
		{"symbol": "ETHUSDT", "size": 5000, "allocation_pct": 50},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := len(mgr.Engine().Positions()); got != 2 {
		t.Errorf("engine holds %d positions, want 2", got)
	}
}

func TestPendingActionsList(t *testing.T) {
	srv, mgr := newTestServer(t)

	a := manager.NewAction(manager.ActionRebalance, "BTCUSDT", manager.OpBuy, 100, "test", manager.PriorityLow)
	mgr.Store().Add(a)

	w := doRequest(srv, http.MethodGet, "/api/v1/actions/pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Count   int              `json:"count"`
		Actions []manager.Action `json:"actions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 1 || len(body.Actions) != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.Actions[0].ID != a.ID {
		t.Errorf("action id = %s, want %s", body.Actions[0].ID, a.ID)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/actions/no-such-id/execute", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEnableDisableLifecycle(t *testing.T) {
	srv, mgr := newTestServer(t)

	if w := doRequest(srv, http.MethodPost, "/api/v1/enable", nil); w.Code != http.StatusOK {
		t.Fatalf("enable status = %d, want 200", w.Code)
	}
	if !mgr.IsRunning() {
		t.Fatal("manager should be running after enable")
	}
	if w := doRequest(srv, http.MethodPost, "/api/v1/enable", nil); w.Code != http.StatusConflict {
		t.Errorf("second enable status = %d, want 409", w.Code)
	}
	if w := doRequest(srv, http.MethodPost, "/api/v1/disable", nil); w.Code != http.StatusOK {
		t.Fatalf("disable status = %d, want 200", w.Code)
	}
	if mgr.IsRunning() {
		t.Error("manager should be stopped after disable")
	}
}

func TestActionHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/actions/history", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
