package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"asset-manager/config"
	"asset-manager/internal/events"
	"asset-manager/internal/logging"
	"asset-manager/internal/policy"
)

// Dispatcher executes a batch of actions against the execution boundary,
// strictly sequentially, with per-action failure isolation.
type Dispatcher interface {
	ExecuteActions(ctx context.Context, actions []Action) Summary
}

// ActionResult is the per-action outcome of a dispatch.
type ActionResult struct {
	Action Action
	Err    error
}

// Summary is the outcome of one executed batch.
type Summary struct {
	Executed int
	Failed   int
	Results  []ActionResult
}

// SnapshotSource supplies the latest known position snapshot for the
// tick refresh step. Implemented by the Redis-backed snapshot repo.
type SnapshotSource interface {
	Load(ctx context.Context) ([]policy.Position, bool)
}

// Errors returned by the manual execution path.
var (
	ErrActionNotFound  = errors.New("action not found")
	ErrAlreadyExecuted = errors.New("action already executed")
	ErrNotRunning      = errors.New("manager is not running")
)

// execJob is one unit of work for the FIFO execution worker. All
// origins (tick, deferred batch, signal, manual) enqueue through it so
// at most one order dispatch is in flight system-wide.
type execJob struct {
	actions []Action
	origin  string
	reply   chan Summary
}

type signalEnvelope struct {
	signal Signal
	status []policy.Position
}

// Manager runs the monitor loop: refresh state, generate actions,
// execute High priority within the tick, defer Medium to a delayed
// batch, leave Low for manual triggers.
type Manager struct {
	mu     sync.RWMutex
	cfg    config.ManagerConfig
	engine *policy.Engine
	store  *ActionStore

	dispatcher Dispatcher
	bus        *events.EventBus
	snapshots  SnapshotSource
	logger     *logging.Logger

	running      bool
	stopChan     chan struct{}
	workerStop   chan struct{}
	signalCh     chan signalEnvelope
	jobs         chan execJob
	wg           sync.WaitGroup
	isProcessing atomic.Bool

	mediumArmed atomic.Bool
	mediumTimer *time.Timer

	lastRebalance   time.Time
	lastProfitCheck time.Time

	countersDay    time.Time
	executedToday  map[ActionType]int
	failedToday    int
	ticksCompleted uint64
}

// NewManager wires a manager around a policy engine and an action
// store. A Dispatcher must be attached with SetDispatcher before Start.
func NewManager(cfg config.ManagerConfig, engine *policy.Engine, store *ActionStore, bus *events.EventBus) *Manager {
	return &Manager{
		cfg:           cfg,
		engine:        engine,
		store:         store,
		bus:           bus,
		logger:        logging.WithComponent("manager"),
		signalCh:      make(chan signalEnvelope, 16),
		jobs:          make(chan execJob, 32),
		executedToday: make(map[ActionType]int),
		countersDay:   today(),
	}
}

// SetDispatcher attaches the execution dispatcher. Must be called
// before Start.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// SetSnapshotSource attaches an optional position-snapshot cache used
// by the tick refresh step. Must be called before Start.
func (m *Manager) SetSnapshotSource(src SnapshotSource) {
	m.snapshots = src
}

// Store exposes the action store for read-only observers.
func (m *Manager) Store() *ActionStore {
	return m.store
}

// Engine exposes the policy engine for read-only observers.
func (m *Manager) Engine() *policy.Engine {
	return m.engine
}

// Start enables automation: launches the execution worker and the
// monitor loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("manager already running")
	}
	if m.dispatcher == nil {
		return fmt.Errorf("no dispatcher attached")
	}
	m.running = true
	m.cfg.Enabled = true
	m.stopChan = make(chan struct{})
	m.workerStop = make(chan struct{})

	m.wg.Add(2)
	go m.worker()
	go m.run()

	m.logger.Info("manager started", "interval", m.cfg.MonitorInterval().String())
	m.bus.PublishAutomationToggled(true)
	return nil
}

// Stop disables automation. Future ticks and pending batch timers are
// cancelled; an execution already in flight runs to completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cfg.Enabled = false
	close(m.stopChan)
	timer := m.mediumTimer
	m.mediumTimer = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	m.mediumArmed.Store(false)
	close(m.workerStop)
	m.wg.Wait()

	m.logger.Info("manager stopped")
	m.bus.PublishAutomationToggled(false)
}

// IsRunning reports whether the monitor loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// IsProcessing reports whether a tick is currently in flight.
func (m *Manager) IsProcessing() bool {
	return m.isProcessing.Load()
}

// Config returns the current manager configuration.
func (m *Manager) Config() config.ManagerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// UpdateConfig merges a partial configuration change, effective from
// the next tick.
func (m *Manager) UpdateConfig(patch config.ManagerConfigPatch) config.ManagerConfig {
	m.mu.Lock()
	m.cfg = m.cfg.Merge(patch)
	merged := m.cfg
	m.mu.Unlock()

	fields := patch.Fields()
	m.logger.Info("configuration updated", "fields", fields)
	m.bus.PublishConfigUpdated(fields)
	return merged
}

// UpdatePositions replaces the policy engine snapshot. Exposed for the
// surrounding client's push path.
func (m *Manager) UpdatePositions(positions []policy.Position) {
	m.engine.UpdatePositions(positions)
}

// OnSignal queues a trading signal for processing in arrival order
// relative to ticks. The accompanying status is the client's current
// position snapshot.
func (m *Manager) OnSignal(sig Signal, status []policy.Position) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case m.signalCh <- signalEnvelope{signal: sig, status: status}:
		return nil
	default:
		return fmt.Errorf("signal queue full")
	}
}

// ExecuteAction manually triggers one pending action by id. This is the
// only execution path for Low-priority actions.
func (m *Manager) ExecuteAction(ctx context.Context, id string) (Summary, error) {
	a, ok := m.store.Get(id)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	if a.Executed {
		return Summary{}, fmt.Errorf("%w: %s", ErrAlreadyExecuted, id)
	}

	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return Summary{}, ErrNotRunning
	}

	return m.submitAndWait(ctx, []Action{*a}, "manual")
}

// run is the monitor loop. Tick and signal paths are serialized here,
// so both writers of the position snapshot go through one goroutine.
func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.Config().MonitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.tick()
		case env := <-m.signalCh:
			m.handleSignal(env.signal, env.status)
		}
	}
}

// worker owns every Dispatcher invocation. One job at a time, FIFO, so
// tick, deferred batch, signal, and manual origins cannot overlap.
func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.workerStop:
			// Unblock any waiter whose job was queued but not run.
			for {
				select {
				case job := <-m.jobs:
					if job.reply != nil {
						job.reply <- Summary{}
					}
				default:
					return
				}
			}
		case job := <-m.jobs:
			summary := m.dispatcher.ExecuteActions(context.Background(), job.actions)
			m.recordResults(job.origin, summary)
			if job.reply != nil {
				job.reply <- summary
			}
		}
	}
}

// tick runs one monitor pass. A tick firing while another is in flight
// is dropped, not queued.
func (m *Manager) tick() {
	if !m.isProcessing.CompareAndSwap(false, true) {
		m.logger.Debug("tick dropped, previous tick still processing")
		return
	}
	defer m.isProcessing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("tick aborted by panic", "panic", fmt.Sprintf("%v", r))
		}
	}()

	cfg := m.Config()
	if !cfg.Enabled {
		return
	}

	start := time.Now()
	m.store.PruneStale(start)
	m.refreshSnapshot()

	var generated []*Action
	if cfg.AutoProfitTaking {
		generated = append(generated, m.generateProfitTakingActions(cfg)...)
	}
	if cfg.AutoRebalance {
		generated = append(generated, m.generateRebalanceActions(cfg, start)...)
	}
	generated = append(generated, m.generateRiskAdjustmentActions()...)

	var high []Action
	mediumAdded := false
	for _, a := range generated {
		if !m.store.Add(a) {
			continue
		}
		m.bus.PublishActionCreated(a.ID, string(a.Type), a.Symbol, string(a.Operation), string(a.Priority), a.Amount)
		switch a.Priority {
		case PriorityHigh:
			high = append(high, *a)
		case PriorityMedium:
			mediumAdded = true
		}
	}

	var summary Summary
	if len(high) > 0 {
		summary = m.submitAndWaitLoop(high, "tick")
	}
	if mediumAdded {
		m.armMediumTimer()
	}

	m.mu.Lock()
	m.lastProfitCheck = start
	m.ticksCompleted++
	m.mu.Unlock()

	m.bus.PublishTickCompleted(len(generated), summary.Executed, summary.Failed, time.Since(start))
	m.logger.Debug("tick completed",
		"generated", len(generated),
		"executed", summary.Executed,
		"failed", summary.Failed,
		"duration", time.Since(start).String())
}

// handleSignal processes one queued trading signal.
func (m *Manager) handleSignal(sig Signal, status []policy.Position) {
	cfg := m.Config()
	if !cfg.Enabled {
		return
	}

	m.bus.PublishSignalReceived(sig.Symbol, sig.Direction, sig.Strength)
	if len(status) > 0 {
		m.engine.UpdatePositions(status)
	}

	a := m.generateSignalAction(sig)
	if a == nil {
		return
	}
	if !m.store.Add(a) {
		return
	}
	m.bus.PublishActionCreated(a.ID, string(a.Type), a.Symbol, string(a.Operation), string(a.Priority), a.Amount)
	m.submitAndWaitLoop([]Action{*a}, "signal")
}

// refreshSnapshot reloads positions from the snapshot cache when one is
// attached. Without a cache the engine keeps its last pushed snapshot.
func (m *Manager) refreshSnapshot() {
	if m.snapshots == nil {
		return
	}
	if positions, ok := m.snapshots.Load(context.Background()); ok {
		m.engine.UpdatePositions(positions)
	}
}

// armMediumTimer schedules a deferred batch of Medium actions. Only one
// timer is armed at a time.
func (m *Manager) armMediumTimer() {
	if !m.mediumArmed.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.mediumArmed.Store(false)
		return
	}
	delay := m.cfg.MediumBatchDelay()
	m.mediumTimer = time.AfterFunc(delay, m.flushMediumBatch)
	m.mu.Unlock()
}

// flushMediumBatch submits up to two pending Medium actions. Fired by
// the deferred timer; defers again when a tick is in flight or Medium
// actions remain.
func (m *Manager) flushMediumBatch() {
	m.mediumArmed.Store(false)

	m.mu.RLock()
	running := m.running && m.cfg.Enabled
	m.mu.RUnlock()
	if !running {
		return
	}

	if m.isProcessing.Load() {
		m.armMediumTimer()
		return
	}

	pending := m.store.PendingByPriority(PriorityMedium)
	if len(pending) == 0 {
		return
	}
	batch := pending
	if len(batch) > 2 {
		batch = batch[:2]
	}

	m.submit(batch, "batch")

	if len(pending) > len(batch) {
		m.armMediumTimer()
	}
}

// submit enqueues a job without waiting for its result.
func (m *Manager) submit(actions []Action, origin string) {
	select {
	case m.jobs <- execJob{actions: actions, origin: origin}:
	case <-m.workerStop:
	}
}

// submitAndWait enqueues a job and blocks until the worker has run it
// or the context is cancelled.
func (m *Manager) submitAndWait(ctx context.Context, actions []Action, origin string) (Summary, error) {
	reply := make(chan Summary, 1)
	select {
	case m.jobs <- execJob{actions: actions, origin: origin, reply: reply}:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case <-m.workerStop:
		return Summary{}, fmt.Errorf("manager is shutting down")
	}

	select {
	case summary := <-reply:
		return summary, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case <-m.workerStop:
		return Summary{}, fmt.Errorf("manager is shutting down")
	}
}

// submitAndWaitLoop is submitAndWait for callers inside the run loop,
// which must not abandon a reply.
func (m *Manager) submitAndWaitLoop(actions []Action, origin string) Summary {
	summary, err := m.submitAndWait(context.Background(), actions, origin)
	if err != nil {
		m.logger.Warn("batch not executed", "origin", origin, "error", err)
	}
	return summary
}

// recordResults updates daily counters and cooldown markers from a
// finished batch. Runs on the worker goroutine for every origin.
func (m *Manager) recordResults(origin string, summary Summary) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if d := today(); !d.Equal(m.countersDay) {
		m.countersDay = d
		m.executedToday = make(map[ActionType]int)
		m.failedToday = 0
	}

	for _, r := range summary.Results {
		if r.Err != nil {
			m.failedToday++
			continue
		}
		m.executedToday[r.Action.Type]++
		if r.Action.Type == ActionRebalance {
			m.lastRebalance = now
		}
	}
}

// GetStatus returns a dashboard snapshot of the manager state.
func (m *Manager) GetStatus() map[string]interface{} {
	pending, executed := m.store.Counts()
	health := m.engine.PortfolioHealth()

	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int, len(m.executedToday))
	for t, n := range m.executedToday {
		counters[string(t)] = n
	}

	status := map[string]interface{}{
		"running":           m.running,
		"processing":        m.isProcessing.Load(),
		"enabled":           m.cfg.Enabled,
		"auto_rebalance":    m.cfg.AutoRebalance,
		"auto_profit":       m.cfg.AutoProfitTaking,
		"interval":          m.cfg.MonitorInterval().String(),
		"pending_actions":   pending,
		"executed_actions":  executed,
		"executed_today":    counters,
		"failed_today":      m.failedToday,
		"ticks_completed":   m.ticksCompleted,
		"risk_health":       health.RiskHealth,
		"portfolio_value":   health.TotalValue,
		"last_profit_check": formatTime(m.lastProfitCheck),
		"last_rebalance":    formatTime(m.lastRebalance),
	}
	return status
}

// Health returns the current portfolio health report.
func (m *Manager) Health() policy.HealthReport {
	return m.engine.PortfolioHealth()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func today() time.Time {
	return time.Now().Truncate(24 * time.Hour)
}
