package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Div1912/Ageis/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64Key(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}

func uintEntry(key string, v uint64) string {
	return fmt.Sprintf(`{"key":%q,"value":{"type":2,"uint":%d}}`, b64Key(key), v)
}

func TestReader_SnapshotDecodesGlobalState(t *testing.T) {
	body := fmt.Sprintf(`{"id":743291048,"params":{"global-state":[%s,%s,%s,%s,%s,%s,%s,%s,%s,%s]}}`,
		uintEntry("entry_price", 190),
		uintEntry("lower_bound", 156),
		uintEntry("upper_bound", 232),
		uintEntry("capital_usdc", 500000),
		uintEntry("open_timestamp", 1700000000),
		uintEntry("total_rebalances", 3),
		uintEntry("last_rebalance_timestamp", 1700050000),
		uintEntry("deposited_algo", 2_000_000),
		uintEntry("deposited_usdc", 1_500_000),
		uintEntry("agent_authorized", 1),
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/applications/743291048", r.URL.Path)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	r := NewReader(743291048, srv.URL, srv.URL, NewCodec(1000, 100))
	snap := r.Snapshot(context.Background())

	assert.Equal(t, types.SourceOnChain, snap.Source)
	assert.Equal(t, 0.19, snap.EntryPrice)
	assert.Equal(t, 0.156, snap.LowerBound)
	assert.Equal(t, 0.232, snap.UpperBound)
	assert.Equal(t, 5000.0, snap.Capital)
	assert.Equal(t, int64(3), snap.TotalRebalances)
	assert.Equal(t, int64(1700050000), snap.LastRebalanceTimestamp)
	assert.Equal(t, 2.0, snap.DepositedBase)
	assert.Equal(t, 1.5, snap.DepositedQuote)
	assert.True(t, snap.AgentAuthorized)
}

func TestReader_SnapshotEmptyForUninitializedContract(t *testing.T) {
	// The application exists but set_position never ran: no state keys.
	// Indistinguishable from a source outage as far as callers go.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":743291048,"params":{"global-state":[]}}`)
	}))
	defer srv.Close()

	r := NewReader(743291048, srv.URL, srv.URL, NewCodec(1000, 100))
	snap := r.Snapshot(context.Background())

	assert.Equal(t, types.SourceEmpty, snap.Source)
	assert.False(t, snap.HasPosition())
	assert.Equal(t, uint64(743291048), snap.AppID)
}

func TestReader_SnapshotEmptyOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "application does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewReader(99, srv.URL, srv.URL, NewCodec(1000, 100))
	snap := r.Snapshot(context.Background())

	assert.Equal(t, types.SourceEmpty, snap.Source)
	assert.Zero(t, snap.EntryPrice)
	assert.Zero(t, snap.Capital)
	assert.Equal(t, uint64(99), snap.AppID)
}

func TestReader_SnapshotEmptyOnUnreachableNode(t *testing.T) {
	r := NewReader(99, "http://127.0.0.1:1", "http://127.0.0.1:1", NewCodec(1000, 100))
	snap := r.Snapshot(context.Background())
	assert.Equal(t, types.SourceEmpty, snap.Source)
}

func TestReader_RebalanceHistory(t *testing.T) {
	arg := func(v uint64) string {
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, v)
		return base64.StdEncoding.EncodeToString(raw)
	}

	body := fmt.Sprintf(`{"transactions":[
		{"id":"TX1","round-time":100,"fee":1000,"tx-type":"appl",
		 "application-transaction":{"application-args":[%q,%q,%q]}},
		{"id":"TX2","round-time":300,"fee":1000,"tx-type":"appl",
		 "application-transaction":{"application-args":[%q,%q,%q]}},
		{"id":"PAY1","round-time":200,"fee":1000,"tx-type":"pay",
		 "application-transaction":{}}
	]}`, triggerRebalanceSelector, arg(147), arg(219),
		triggerRebalanceSelector, arg(150), arg(222))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/transactions", r.URL.Path)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	r := NewReader(743291048, srv.URL, srv.URL, NewCodec(1000, 100))
	events := r.RebalanceHistory(context.Background())

	require.Len(t, events, 2, "non-application transactions are filtered out")
	assert.Equal(t, "TX2", events[0].TxID, "newest first")
	assert.Equal(t, 0.150, events[0].NewLower)
	assert.Equal(t, 0.222, events[0].NewUpper)
	assert.Equal(t, "TX1", events[1].TxID)
	assert.InDelta(t, 0.001, events[1].Fee, 1e-9)
}

func TestReader_RebalanceHistoryEmptyOnFailure(t *testing.T) {
	r := NewReader(99, "http://127.0.0.1:1", "http://127.0.0.1:1", NewCodec(1000, 100))
	assert.Empty(t, r.RebalanceHistory(context.Background()))
}
