/*

This file reads and decodes the on-chain global key/value state of the
position contract into a typed snapshot, and parses rebalance history out of
indexer transaction records.

The read path never throws past this boundary: a network hiccup and a
not-yet-configured contract both come back as the canonical empty snapshot,
and the reconciliation layer above decides whether that is acceptable.

*/

package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
	"golang.org/x/time/rate"
)

var readerLogger = logger.GetForComponent("ledger_reader")

const (
	requestTimeout = 10 * time.Second
	historyLimit   = 50

	// ABI selector of trigger_rebalance(uint64,uint64)void, as it appears
	// base64-encoded in indexer application args.
	triggerRebalanceSelector = "DhG20w=="
)

// stateValue mirrors one global-state value from the node API. Type 1 is
// bytes, type 2 is uint.
type stateValue struct {
	Type  int    `json:"type"`
	Bytes string `json:"bytes"`
	Uint  uint64 `json:"uint"`
}

type applicationResponse struct {
	ID     uint64 `json:"id"`
	Params struct {
		GlobalState []struct {
			Key   string     `json:"key"`
			Value stateValue `json:"value"`
		} `json:"global-state"`
	} `json:"params"`
}

type transactionsResponse struct {
	Transactions []struct {
		ID        string `json:"id"`
		RoundTime int64  `json:"round-time"`
		Fee       uint64 `json:"fee"`
		TxType    string `json:"tx-type"`
		AppTxn    struct {
			ApplicationArgs []string `json:"application-args"`
		} `json:"application-transaction"`
	} `json:"transactions"`
}

// Reader decodes contract state from the node and transaction history from
// the indexer.
type Reader struct {
	appID      uint64
	nodeURL    string
	indexerURL string
	codec      Codec
	http       *http.Client
	limiter    *rate.Limiter
}

// NewReader builds a Reader against the given node and indexer endpoints.
func NewReader(appID uint64, nodeURL, indexerURL string, codec Codec) *Reader {
	return &Reader{
		appID:      appID,
		nodeURL:    nodeURL,
		indexerURL: indexerURL,
		codec:      codec,
		http:       &http.Client{Timeout: requestTimeout},
		// Public node endpoints rate-limit free tiers aggressively.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Snapshot reads the contract's global state. On any failure, and for a
// contract whose state was never initialized, it returns the canonical empty
// snapshot tagged SourceEmpty.
func (r *Reader) Snapshot(ctx context.Context) types.Snapshot {
	url := fmt.Sprintf("%s/v2/applications/%d", r.nodeURL, r.appID)

	var app applicationResponse
	if err := r.getJSON(ctx, url, &app); err != nil {
		readerLogger.Warn().Err(err).Uint64("appId", r.appID).Msg("Failed to read global state, returning empty snapshot")
		return types.Empty(r.appID, "")
	}

	state := make(map[string]stateValue, len(app.Params.GlobalState))
	for _, kv := range app.Params.GlobalState {
		key, err := base64.StdEncoding.DecodeString(kv.Key)
		if err != nil {
			continue
		}
		state[string(key)] = kv.Value
	}

	// An application that exists but was never configured has no state keys.
	// That reads the same as a network failure: the canonical empty snapshot.
	if _, ok := state["entry_price"]; !ok {
		readerLogger.Debug().Uint64("appId", r.appID).Msg("Contract state not initialized, returning empty snapshot")
		return types.Empty(r.appID, "")
	}

	snap := types.Snapshot{
		EntryPrice:             r.codec.DecodePrice(uintKey(state, "entry_price")),
		LowerBound:             r.codec.DecodePrice(uintKey(state, "lower_bound")),
		UpperBound:             r.codec.DecodePrice(uintKey(state, "upper_bound")),
		Capital:                r.codec.DecodeCapital(uintKey(state, "capital_usdc")),
		OpenTimestamp:          int64(uintKey(state, "open_timestamp")),
		TotalRebalances:        int64(uintKey(state, "total_rebalances")),
		LastRebalanceTimestamp: int64(uintKey(state, "last_rebalance_timestamp")),
		DepositedBase:          r.codec.DecodeMicro(uintKey(state, "deposited_algo")),
		DepositedQuote:         r.codec.DecodeMicro(uintKey(state, "deposited_usdc")),
		TotalDeposits:          int64(uintKey(state, "total_deposits")),
		TotalWithdrawals:       int64(uintKey(state, "total_withdrawals")),
		AgentAuthorized:        uintKey(state, "agent_authorized") == 1,
		TotalDecisions:         int64(uintKey(state, "total_decisions")),
		LastDecisionTimestamp:  int64(uintKey(state, "last_decision_timestamp")),
		LastDecisionAction:     int64(uintKey(state, "last_decision_action")),
		AppID:                  r.appID,
		Source:                 types.SourceOnChain,
	}
	return snap
}

// RebalanceHistory fetches confirmed application calls from the indexer and
// parses out rebalance events, newest first. Returns an empty slice on any
// failure.
func (r *Reader) RebalanceHistory(ctx context.Context) []types.RebalanceEvent {
	url := fmt.Sprintf("%s/v2/transactions?application-id=%d&limit=%d", r.indexerURL, r.appID, historyLimit)

	var resp transactionsResponse
	if err := r.getJSON(ctx, url, &resp); err != nil {
		readerLogger.Warn().Err(err).Uint64("appId", r.appID).Msg("Failed to fetch transaction history")
		return []types.RebalanceEvent{}
	}

	events := make([]types.RebalanceEvent, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		if tx.TxType != "appl" || len(tx.AppTxn.ApplicationArgs) == 0 {
			continue
		}
		ev := types.RebalanceEvent{
			TxID:      tx.ID,
			Timestamp: tx.RoundTime,
			Fee:       r.codec.DecodeMicro(tx.Fee),
		}
		// Bounds are recoverable only from trigger_rebalance calls.
		args := tx.AppTxn.ApplicationArgs
		if args[0] == triggerRebalanceSelector && len(args) == 3 {
			if lower, ok := decodeUint64Arg(args[1]); ok {
				ev.NewLower = r.codec.DecodePrice(lower)
			}
			if upper, ok := decodeUint64Arg(args[2]); ok {
				ev.NewUpper = r.codec.DecodePrice(upper)
			}
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp > events[j].Timestamp })
	return events
}

func (r *Reader) getJSON(ctx context.Context, url string, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "aegis-monitor/1.0")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrSourceUnavailable, resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}

func uintKey(state map[string]stateValue, key string) uint64 {
	v, ok := state[key]
	if !ok || v.Type != 2 {
		return 0
	}
	return v.Uint
}

func decodeUint64Arg(arg string) (uint64, bool) {
	raw, err := base64.StdEncoding.DecodeString(arg)
	if err != nil || len(raw) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw), true
}
