package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Div1912/Ageis/internal/types"
)

const testAppID uint64 = 745991234

type fakeLedger struct {
	mu   sync.Mutex
	snap types.Snapshot
}

func (f *fakeLedger) Snapshot(context.Context) types.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeLedger) set(snap types.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

type fakeRecords struct {
	mu      sync.Mutex
	byOwner map[string][]types.StoredPosition
	err     error
}

func (f *fakeRecords) ActivePositions(_ context.Context, owner string) ([]types.StoredPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byOwner[owner], nil
}

func chainSnapshot() types.Snapshot {
	return types.Snapshot{
		EntryPrice:             0.19,
		LowerBound:             0.156,
		UpperBound:             0.232,
		TotalRebalances:        3,
		LastRebalanceTimestamp: 1700000500,
		DepositedQuote:         250,
		TotalDeposits:          2,
		AgentAuthorized:        true,
		TotalDecisions:         12,
		LastDecisionAction:     1,
		AppID:                  testAppID,
		Source:                 types.SourceOnChain,
	}
}

func storeRecord(owner string) types.StoredPosition {
	return types.StoredPosition{
		ID:              7,
		Owner:           owner,
		EntryPrice:      0.19,
		LowerBound:      0.16,
		UpperBound:      0.23,
		Capital:         5000,
		OpenTimestamp:   1700000000,
		TotalRebalances: 2,
		Status:          types.StatusActive,
		AppID:           testAppID,
	}
}

func TestRefreshMergesStoreAndChain(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")

	snap := r.Refresh(context.Background())

	assert.Equal(t, types.SourceStoreOnChain, snap.Source)
	assert.InDelta(t, 5000, snap.Capital, 1e-9, "capital comes from the store record")
	assert.InDelta(t, 0.19, snap.EntryPrice, 1e-12)
	// Chain rebalanced once more than the store saw, so its counter and
	// bounds win.
	assert.Equal(t, int64(3), snap.TotalRebalances)
	assert.InDelta(t, 0.156, snap.LowerBound, 1e-12)
	assert.InDelta(t, 0.232, snap.UpperBound, 1e-12)
	// Chain-only counters carry over.
	assert.True(t, snap.AgentAuthorized)
	assert.Equal(t, int64(12), snap.TotalDecisions)
	assert.InDelta(t, 250, snap.DepositedQuote, 1e-9)
	assert.Equal(t, "OWNERAAA", snap.OwnerID)
}

func TestRefreshChainBoundsWinWithoutRebalance(t *testing.T) {
	// A position re-set on chain that never rebalanced: zero rebalance
	// counters, but the contract's range is still the system of record and
	// must displace the stale stored bounds.
	chain := chainSnapshot()
	chain.LowerBound = 0.17
	chain.UpperBound = 0.25
	chain.TotalRebalances = 0
	chain.LastRebalanceTimestamp = 0

	ledger := &fakeLedger{snap: chain}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")

	snap := r.Refresh(context.Background())

	assert.Equal(t, types.SourceStoreOnChain, snap.Source)
	assert.InDelta(t, 0.17, snap.LowerBound, 1e-12)
	assert.InDelta(t, 0.25, snap.UpperBound, 1e-12)
	assert.InDelta(t, 5000, snap.Capital, 1e-9, "store still attributes capital")
	// The store's higher counter is not rolled back by the chain's zero.
	assert.Equal(t, int64(2), snap.TotalRebalances)
}

func TestRefreshChainOnlyReportsZeroCapital(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{}}
	r := New(ledger, records, testAppID, "OWNERBBB")

	snap := r.Refresh(context.Background())

	assert.Equal(t, types.SourceOnChain, snap.Source)
	assert.Zero(t, snap.Capital, "no store record means capital cannot be attributed")
	assert.InDelta(t, 0.19, snap.EntryPrice, 1e-12)
	assert.Equal(t, "OWNERBBB", snap.OwnerID)
}

func TestRefreshOwnersAreIsolated(t *testing.T) {
	ledger := &fakeLedger{}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}

	// Owner B has no record and the chain is empty: B must see an empty
	// snapshot, never A's capital.
	r := New(ledger, records, testAppID, "OWNERBBB")
	snap := r.Refresh(context.Background())

	assert.Equal(t, types.SourceEmpty, snap.Source)
	assert.False(t, snap.HasPosition())
	assert.Zero(t, snap.Capital)
}

func TestRefreshServesLastKnownGoodOnDoubleFailure(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")

	good := r.Refresh(context.Background())
	require.True(t, good.HasPosition())

	// Both sources go dark.
	ledger.set(types.Empty(testAppID, ""))
	records.mu.Lock()
	records.byOwner = map[string][]types.StoredPosition{}
	records.mu.Unlock()

	snap := r.Refresh(context.Background())
	assert.True(t, snap.HasPosition(), "last known good snapshot bridges the outage")
	assert.InDelta(t, good.Capital, snap.Capital, 1e-9)
}

func TestSetOwnerDiscardsCachedState(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")

	require.True(t, r.Refresh(context.Background()).HasPosition())

	ledger.set(types.Empty(testAppID, ""))
	r.SetOwner("OWNERBBB")

	snap := r.Refresh(context.Background())
	assert.False(t, snap.HasPosition(), "previous owner's snapshot must not leak across a switch")
	assert.Equal(t, "OWNERBBB", snap.OwnerID)
}

func TestForceUpdateOutranksNextPoll(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")
	r.Refresh(context.Background())

	updated := r.Current()
	updated.LowerBound = 0.1476
	updated.UpperBound = 0.2196
	updated.TotalRebalances = 4
	r.ForceUpdate(updated, time.Minute)

	// The next poll still reads the pre-transaction chain state; it must
	// not roll the snapshot back.
	snap := r.Refresh(context.Background())
	assert.Equal(t, types.SourceLocalUpdate, snap.Source)
	assert.InDelta(t, 0.1476, snap.LowerBound, 1e-12)
	assert.Equal(t, int64(4), snap.TotalRebalances)
}

func TestForceUpdateExpiresAfterPin(t *testing.T) {
	ledger := &fakeLedger{snap: chainSnapshot()}
	records := &fakeRecords{byOwner: map[string][]types.StoredPosition{
		"OWNERAAA": {storeRecord("OWNERAAA")},
	}}
	r := New(ledger, records, testAppID, "OWNERAAA")

	updated := chainSnapshot()
	updated.Capital = 5000
	r.ForceUpdate(updated, time.Duration(0))

	// Pin already expired; a fresh poll may replace the forced snapshot.
	snap := r.Refresh(context.Background())
	assert.Equal(t, types.SourceStoreOnChain, snap.Source)
}
