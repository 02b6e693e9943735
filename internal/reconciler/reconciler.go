/*

Package reconciler merges the two views of a position -- the ledger's global
state and the position store's active record -- into one authoritative
snapshot, and keeps it fresh on a polling loop.

The store record wins on the fields a user entered (entry price, capital,
open timestamp); the ledger wins on the range bounds and the counters only
the chain can know (vault totals, agent authorization, decision log
counters). A ledger-only view
carries zero capital because the global state does not record how much of the
owner's capital is still deployed.

*/

package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

// LedgerSource is the chain-side snapshot provider.
type LedgerSource interface {
	Snapshot(ctx context.Context) types.Snapshot
}

// RecordSource is the store-side view, satisfied by *store.Adapter.
type RecordSource interface {
	ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error)
}

// Reconciler polls both sources and exposes the merged snapshot. A local
// update applied through ForceUpdate outranks one subsequent poll, so a
// just-confirmed transaction is never overwritten by a stale read.
type Reconciler struct {
	ledger LedgerSource
	store  RecordSource
	appID  uint64
	log    zerolog.Logger

	mu      sync.RWMutex
	owner   string
	current types.Snapshot

	// lastGood is the most recent snapshot that described an open position,
	// kept per owner so a transient double-failure of both sources does not
	// blank the dashboard.
	lastGood    types.Snapshot
	hasLastGood bool

	// generation increments on every ForceUpdate; a poll started before the
	// update must not clobber it. pinnedUntil additionally shields the
	// forced snapshot from the next completed poll, which may have read
	// state from before the transaction landed.
	generation  uint64
	pinnedUntil time.Time
}

// New builds a reconciler for one owner identity. owner may be empty for a
// read-only global view; store records are then never consulted.
func New(ledger LedgerSource, recordStore RecordSource, appID uint64, owner string) *Reconciler {
	return &Reconciler{
		ledger:  ledger,
		store:   recordStore,
		appID:   appID,
		owner:   owner,
		current: types.Empty(appID, owner),
		log:     logger.GetForComponent("reconciler"),
	}
}

// Current returns the latest merged snapshot.
func (r *Reconciler) Current() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Owner returns the identity the reconciler is scoped to.
func (r *Reconciler) Owner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// SetOwner switches the monitored identity. The cached snapshot and the
// last-known-good fallback belong to the previous owner and are discarded.
func (r *Reconciler) SetOwner(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner == r.owner {
		return
	}
	r.log.Info().Str("previous", r.owner).Str("owner", owner).Msg("Switching monitored identity, discarding cached state")
	r.owner = owner
	r.current = types.Empty(r.appID, owner)
	r.hasLastGood = false
	r.pinnedUntil = time.Time{}
}

// ForceUpdate installs a locally computed snapshot, typically right after a
// confirmed transaction. It wins over any poll already in flight and over
// the next completed poll.
func (r *Reconciler) ForceUpdate(snap types.Snapshot, pinFor time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.AppID = r.appID
	snap.OwnerID = r.owner
	snap.Source = types.SourceLocalUpdate
	r.current = snap
	if snap.HasPosition() {
		r.lastGood = snap
		r.hasLastGood = true
	}
	r.generation++
	r.pinnedUntil = time.Now().Add(pinFor)
	r.log.Debug().Uint64("generation", r.generation).Msg("Applied local snapshot update")
}

// Refresh performs one reconciliation pass and returns the resulting
// snapshot.
func (r *Reconciler) Refresh(ctx context.Context) types.Snapshot {
	r.mu.RLock()
	startGen := r.generation
	owner := r.owner
	r.mu.RUnlock()

	merged := r.reconcile(ctx, owner)

	r.mu.Lock()
	defer r.mu.Unlock()
	// A ForceUpdate raced this poll, or the forced snapshot is still
	// pinned; the poll result predates the local write, drop it.
	if r.generation != startGen || time.Now().Before(r.pinnedUntil) {
		r.log.Debug().Msg("Poll result superseded by local update, discarding")
		return r.current
	}
	if owner != r.owner {
		return r.current
	}
	r.current = merged
	if merged.HasPosition() {
		r.lastGood = merged
		r.hasLastGood = true
	}
	return r.current
}

func (r *Reconciler) reconcile(ctx context.Context, owner string) types.Snapshot {
	chain := r.ledger.Snapshot(ctx)

	var record *types.StoredPosition
	if owner != "" && r.store != nil {
		active, err := r.store.ActivePositions(ctx, owner)
		if err != nil {
			r.log.Warn().Err(err).Msg("Position store read failed during reconciliation")
		} else if len(active) > 0 {
			record = &active[0]
		}
	}

	if record != nil && record.EntryPrice > 0 {
		return r.mergeRecord(*record, chain)
	}

	if chain.HasPosition() {
		// No store record to attribute capital with; report the range but
		// keep deployed capital at zero rather than guessing.
		chain.Capital = 0
		chain.OwnerID = owner
		chain.Source = types.SourceOnChain
		return chain
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hasLastGood && r.lastGood.OwnerID == owner {
		r.log.Warn().Msg("Both position sources empty, serving last known good snapshot")
		return r.lastGood
	}
	return types.Empty(r.appID, owner)
}

// mergeRecord overlays live ledger counters onto the store record's financial
// fields.
func (r *Reconciler) mergeRecord(record types.StoredPosition, chain types.Snapshot) types.Snapshot {
	snap := types.Snapshot{
		EntryPrice:      record.EntryPrice,
		LowerBound:      record.LowerBound,
		UpperBound:      record.UpperBound,
		Capital:         record.Capital,
		OpenTimestamp:   record.OpenTimestamp,
		TotalRebalances: record.TotalRebalances,
		AppID:           r.appID,
		OwnerID:         record.Owner,
		Source:          types.SourceStore,
	}
	if chain.HasPosition() {
		snap.Source = types.SourceStoreOnChain
		// The chain's rebalance counter includes agent-initiated cycles
		// the store may not have seen yet.
		if chain.TotalRebalances > snap.TotalRebalances {
			snap.TotalRebalances = chain.TotalRebalances
		}
		snap.LastRebalanceTimestamp = chain.LastRebalanceTimestamp
		// The contract is the range's system of record: every set_position
		// and trigger_rebalance rewrites it there, so its bounds always win
		// over the stored ones.
		snap.LowerBound = chain.LowerBound
		snap.UpperBound = chain.UpperBound
	}
	// Counters only the chain tracks.
	snap.DepositedBase = chain.DepositedBase
	snap.DepositedQuote = chain.DepositedQuote
	snap.TotalDeposits = chain.TotalDeposits
	snap.TotalWithdrawals = chain.TotalWithdrawals
	snap.AgentAuthorized = chain.AgentAuthorized
	snap.TotalDecisions = chain.TotalDecisions
	snap.LastDecisionTimestamp = chain.LastDecisionTimestamp
	snap.LastDecisionAction = chain.LastDecisionAction
	return snap
}

// Run polls at the given interval until ctx is cancelled. One refresh runs
// immediately on entry.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.log.Info().Dur("interval", interval).Msg("Starting reconciliation loop")
	r.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Reconciliation loop stopped")
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
