/*

Package agent runs the autonomous monitoring loop: reconcile the position,
fetch the price, evaluate the decision engine, and in live mode execute the
rebalance it recommends. Every decision is appended to the store's decision
log and, when a delegated signer is present, mirrored on-chain.

The loop runs in-process next to the web server; Status() feeds the
/api/agent/status endpoint.

*/

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/decision"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/notify"
	"github.com/Div1912/Ageis/internal/reconciler"
	"github.com/Div1912/Ageis/internal/types"
)

// PriceSource is the oracle surface the agent needs.
type PriceSource interface {
	Price(ctx context.Context) float64
}

// Executor is the orchestrator surface the agent needs.
type Executor interface {
	Rebalance(ctx context.Context, newLower, newUpper float64, sender string) (types.RebalanceEvent, error)
	LogDecision(ctx context.Context, action types.Action, sender string) (string, error)
}

// DecisionLog is the store surface the agent needs.
type DecisionLog interface {
	AppendDecision(ctx context.Context, rec types.DecisionRecord) error
	RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error)
}

// Status is the runner's externally visible state.
type Status struct {
	Running         bool                   `json:"running"`
	UptimeSeconds   int64                  `json:"uptime_seconds"`
	CycleCount      int                    `json:"cycle_count"`
	TotalDecisions  int64                  `json:"total_decisions"`
	LastDecision    *types.DecisionRecord  `json:"last_decision,omitempty"`
	RecentDecisions []types.DecisionRecord `json:"recent_decisions"`
}

// Runner owns the agent loop lifecycle.
type Runner struct {
	cfg      *config.Config
	rec      *reconciler.Reconciler
	oracle   PriceSource
	engine   *decision.Engine
	executor Executor
	decLog   DecisionLog
	console  *notify.Console
	identity string // sender identity for agent-built transactions
	log      zerolog.Logger

	mu             sync.Mutex
	cancel         context.CancelFunc
	startedAt      time.Time
	cycleCount     int
	totalDecisions int64
	lastDecision   *types.DecisionRecord
}

// NewRunner wires the agent. identity is the delegated agent address used as
// sender on trigger_rebalance and log_decision.
func NewRunner(cfg *config.Config, rec *reconciler.Reconciler, oracle PriceSource, engine *decision.Engine, executor Executor, decLog DecisionLog, console *notify.Console, identity string) *Runner {
	return &Runner{
		cfg:      cfg,
		rec:      rec,
		oracle:   oracle,
		engine:   engine,
		executor: executor,
		decLog:   decLog,
		console:  console,
		identity: identity,
		log:      logger.GetForComponent("agent"),
	}
}

// Start launches the loop. Returns false if it is already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.startedAt = time.Now()
	go r.runLoop(loopCtx)
	r.log.Info().Dur("interval", r.cfg.AgentInterval).Str("mode", r.cfg.Mode).Msg("Agent started")
	return true
}

// Stop halts the loop. Returns false if it was not running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	r.log.Info().Msg("Agent stopped")
	return true
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Status assembles the state served by the status endpoint.
func (r *Runner) Status(ctx context.Context) Status {
	r.mu.Lock()
	running := r.cancel != nil
	var uptime int64
	if running {
		uptime = int64(time.Since(r.startedAt).Seconds())
	}
	st := Status{
		Running:        running,
		UptimeSeconds:  uptime,
		CycleCount:     r.cycleCount,
		TotalDecisions: r.totalDecisions,
		LastDecision:   r.lastDecision,
	}
	r.mu.Unlock()

	recent, err := r.decLog.RecentDecisions(ctx, 20)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to load recent decisions for status")
		recent = []types.DecisionRecord{}
	}
	if recent == nil {
		recent = []types.DecisionRecord{}
	}
	st.RecentDecisions = recent
	return st
}

func (r *Runner) runLoop(ctx context.Context) {
	// Run first cycle immediately, then continue on the ticker.
	r.RunCycle(ctx)

	ticker := time.NewTicker(r.cfg.AgentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle executes one complete evaluation cycle.
func (r *Runner) RunCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	cycleLogger := r.log.With().Str("cycle_id", cycleID).Logger()

	r.mu.Lock()
	r.cycleCount++
	cycle := r.cycleCount
	r.mu.Unlock()
	cycleLogger.Info().Int("cycle", cycle).Msg("--- Starting agent cycle ---")

	snap := r.rec.Refresh(ctx)
	price := r.oracle.Price(ctx)

	if !snap.HasPosition() {
		cycleLogger.Info().Float64("price", price).Msg("No active position, nothing to evaluate")
		r.console.Cycle(snap, price, types.Decision{})
		return
	}

	d := r.engine.Evaluate(snap, price)
	cycleLogger.Info().
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Float64("price", price).
		Float64("fee_projection", d.FeeProjection).
		Float64("swap_cost", d.SwapCost).
		Msg("Decision evaluated")

	rec := types.DecisionRecord{
		Timestamp:     time.Now().Unix(),
		Action:        d.Action,
		Price:         price,
		Reason:        d.Reason,
		FeeProjection: d.FeeProjection,
		SwapCost:      d.SwapCost,
		HoursInRange:  d.HoursInRange,
		Confidence:    d.Confidence,
	}

	if d.Action == types.ActionRebalance {
		rec.TxID = r.executeRebalance(ctx, cycleLogger, d)
	}

	if err := r.decLog.AppendDecision(ctx, rec); err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to persist decision record")
	}
	if r.cfg.Mode == "live" && r.executor != nil {
		if _, err := r.executor.LogDecision(ctx, d.Action, r.identity); err != nil {
			cycleLogger.Warn().Err(err).Msg("Failed to mirror decision on-chain")
		}
	}

	r.mu.Lock()
	r.totalDecisions++
	r.lastDecision = &rec
	r.mu.Unlock()

	r.console.Cycle(snap, price, d)
}

// executeRebalance carries out a REBALANCE decision when the mode gate
// permits it. Returns the transaction id when confirmed.
func (r *Runner) executeRebalance(ctx context.Context, cycleLogger zerolog.Logger, d types.Decision) string {
	if r.cfg.Mode != "live" {
		cycleLogger.Info().
			Float64("new_lower", d.NewLower).
			Float64("new_upper", d.NewUpper).
			Msg("Dry-run mode: rebalance recommended but not executed")
		return ""
	}
	if r.executor == nil {
		cycleLogger.Warn().Msg("No executor configured, cannot execute rebalance")
		return ""
	}

	event, err := r.executor.Rebalance(ctx, d.NewLower, d.NewUpper, r.identity)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Rebalance execution failed")
		return ""
	}
	cycleLogger.Info().Str("tx_id", event.TxID).Msg("Rebalance executed")
	r.console.Rebalance(event)
	return event.TxID
}
