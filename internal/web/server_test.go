package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Div1912/Ageis/internal/agent"
	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/types"
)

const ownerAddr = "OWNER7E2QODJU4DUKFSLU5CWQIIOSXWPXKBAREI5OIJRSPANGZ3DRN6I"

type fakeSnapshots struct{ snap types.Snapshot }

func (f fakeSnapshots) Current() types.Snapshot                { return f.snap }
func (f fakeSnapshots) Refresh(context.Context) types.Snapshot { return f.snap }

type fakeOracle struct{ price float64 }

func (f fakeOracle) Price(context.Context) float64 { return f.price }
func (f fakeOracle) LastFetch() time.Time          { return time.Unix(1700000000, 0) }

type fakeHistory struct{ events []types.RebalanceEvent }

func (f fakeHistory) RebalanceHistory(context.Context) []types.RebalanceEvent { return f.events }

type fakeExecutor struct {
	lastLower, lastUpper float64
	lastSender           string
	err                  error
}

func (f *fakeExecutor) Rebalance(_ context.Context, newLower, newUpper float64, sender string) (types.RebalanceEvent, error) {
	if f.err != nil {
		return types.RebalanceEvent{}, f.err
	}
	f.lastLower, f.lastUpper, f.lastSender = newLower, newUpper, sender
	return types.RebalanceEvent{TxID: "TXWEB1", Timestamp: time.Now().Unix(), NewLower: newLower, NewUpper: newUpper}, nil
}

func (f *fakeExecutor) Deposit(_ context.Context, _, _ float64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "TXDEP", nil
}

func (f *fakeExecutor) Withdraw(_ context.Context, _, _ float64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "TXWDR", nil
}

func (f *fakeExecutor) ClosePosition(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "TXCLS", nil
}

type fakeDecisions struct {
	records []types.DecisionRecord
	pingErr error
}

func (f fakeDecisions) RecentDecisions(context.Context, int) ([]types.DecisionRecord, error) {
	return f.records, nil
}
func (f fakeDecisions) Depositors(context.Context) ([]types.Depositor, error) {
	return []types.Depositor{{Owner: ownerAddr, QuoteDeposited: 250}}, nil
}
func (f fakeDecisions) Ping(context.Context) error { return f.pingErr }

type fakeAgent struct{ running bool }

func (f *fakeAgent) Start(context.Context) bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeAgent) Stop() bool {
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeAgent) Status(context.Context) agent.Status {
	return agent.Status{Running: f.running, RecentDecisions: []types.DecisionRecord{}}
}

func webConfig() *config.Config {
	return &config.Config{
		AppID:            745991234,
		Mode:             "dry-run",
		WebPort:          "8080",
		AnnualFeeRate:    0.35,
		SwapCostEstimate: 4.20,
		RangeWidthLower:  0.18,
		RangeWidthUpper:  0.22,
	}
}

func openSnapshot() types.Snapshot {
	return types.Snapshot{
		EntryPrice:      0.19,
		LowerBound:      0.156,
		UpperBound:      0.232,
		Capital:         5000,
		OpenTimestamp:   time.Now().Add(-24 * time.Hour).Unix(),
		TotalRebalances: 2,
		OwnerID:         ownerAddr,
		Source:          types.SourceStoreOnChain,
	}
}

func newTestServer(snap types.Snapshot, executor *fakeExecutor, decisions fakeDecisions, agentCtl *fakeAgent) *WebServer {
	return NewWebServer(webConfig(), fakeSnapshots{snap: snap}, fakeOracle{price: 0.21},
		fakeHistory{}, executor, decisions, agentCtl, ownerAddr)
}

func doRequest(t *testing.T, ws *WebServer, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ws.Router().ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestGetPositionIncludesAnalytics(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/position", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, payload["has_position"])
	analytics, ok := payload["analytics"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 0.21, analytics["current_price"].(float64), 1e-9)
	assert.Equal(t, true, analytics["in_range"].(bool))
	// Two rebalances at the flat estimate.
	assert.InDelta(t, 8.40, analytics["swap_losses"].(float64), 1e-9)
	// IL for r=21/19 is -0.0329%; numeric and formatted fields agree on the
	// same percentage.
	assert.InDelta(t, -0.0329, analytics["impermanent_loss_pct"].(float64), 5e-4)
	assert.Equal(t, "-0.03%", analytics["impermanent_loss_pct_formatted"])
	assert.NotEmpty(t, analytics["net_pnl_formatted"])
}

func TestGetPositionEmpty(t *testing.T) {
	ws := newTestServer(types.Empty(745991234, ownerAddr), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/position", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, payload["has_position"])
}

func TestDecisionLogMergesOnChainDecision(t *testing.T) {
	snap := openSnapshot()
	snap.LastDecisionTimestamp = 1700000200
	snap.LastDecisionAction = 1

	decisions := fakeDecisions{records: []types.DecisionRecord{
		{Timestamp: 1700000100, Action: types.ActionHold, Reason: "In range"},
	}}
	ws := newTestServer(snap, &fakeExecutor{}, decisions, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/decision-log", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := payload["decisions"].([]interface{})
	require.Len(t, list, 2)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "REBALANCE", first["action"], "on-chain decision is newest and sorts first")
	second := list[1].(map[string]interface{})
	assert.Equal(t, "HOLD", second["action"])
}

func TestDecisionLogDeduplicatesByTimestamp(t *testing.T) {
	snap := openSnapshot()
	snap.LastDecisionTimestamp = 1700000100
	snap.LastDecisionAction = 0

	decisions := fakeDecisions{records: []types.DecisionRecord{
		{Timestamp: 1700000100, Action: types.ActionHold, Reason: "In range"},
	}}
	ws := newTestServer(snap, &fakeExecutor{}, decisions, &fakeAgent{})

	_, payload := doRequest(t, ws, "GET", "/api/decision-log", nil)
	assert.Len(t, payload["decisions"].([]interface{}), 1)
}

func TestTriggerRebalanceDefaultsBoundsFromPrice(t *testing.T) {
	executor := &fakeExecutor{}
	ws := newTestServer(openSnapshot(), executor, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "POST", "/api/trigger-rebalance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "TXWEB1", payload["tx_id"])
	assert.InDelta(t, 0.21*0.82, executor.lastLower, 1e-9)
	assert.InDelta(t, 0.21*1.22, executor.lastUpper, 1e-9)
	assert.Equal(t, ownerAddr, executor.lastSender)
}

func TestTriggerRebalanceExplicitBounds(t *testing.T) {
	executor := &fakeExecutor{}
	ws := newTestServer(openSnapshot(), executor, fakeDecisions{}, &fakeAgent{})

	body := []byte(`{"new_lower": 0.15, "new_upper": 0.25}`)
	rec, _ := doRequest(t, ws, "POST", "/api/trigger-rebalance", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.15, executor.lastLower, 1e-9)
	assert.InDelta(t, 0.25, executor.lastUpper, 1e-9)
}

func TestTriggerRebalanceFailureReturnsError(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("user rejected the transaction in the wallet")}
	ws := newTestServer(openSnapshot(), executor, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "POST", "/api/trigger-rebalance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, true, payload["error"])
	assert.Contains(t, payload["message"], "rejected")
}

func TestDepositEndpoint(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "POST", "/api/deposit", []byte(`{"quote_amount": 250}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TXDEP", payload["tx_id"])
}

func TestAgentStartStopLifecycle(t *testing.T) {
	agentCtl := &fakeAgent{}
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, agentCtl)

	rec, _ := doRequest(t, ws, "POST", "/api/agent/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, ws, "POST", "/api/agent/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "double start conflicts")

	rec, payload := doRequest(t, ws, "GET", "/api/agent/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["running"])

	rec, _ = doRequest(t, ws, "POST", "/api/agent/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, ws, "POST", "/api/agent/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthReportsDegradedStore(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{pingErr: errors.New("down")}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", payload["status"])
	assert.Equal(t, false, payload["store_healthy"])
}

func TestRebalanceHistoryAlwaysReturnsArray(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/rebalance-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, payload["events"])
	assert.EqualValues(t, 0, payload["count"])
}

func TestCORSHeadersPresent(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	req := httptest.NewRequest("GET", "/api/position", nil)
	rec := httptest.NewRecorder()
	ws.Router().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDepositorsEndpoint(t *testing.T) {
	ws := newTestServer(openSnapshot(), &fakeExecutor{}, fakeDecisions{}, &fakeAgent{})

	rec, payload := doRequest(t, ws, "GET", "/api/depositors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, payload["count"])
}
