/*

This file contains the types describing a concentrated-liquidity position as
seen by the monitoring engine: the reconciled snapshot, its provenance tag,
and the persisted store rows.

*/

package types

import "time"

// Source tags where a snapshot's fields came from. Diagnostic only; financial
// logic never branches on it outside the reconciler's merge step.
type Source string

const (
	SourceEmpty        Source = "empty"
	SourceOnChain      Source = "on-chain"
	SourceStore        Source = "store"
	SourceStoreOnChain Source = "store+on-chain"
	SourceLocalUpdate  Source = "local-update"
)

// Snapshot is the authoritative description of one liquidity range at a point
// in time. Prices are quote-asset units; Capital is quote-asset units.
type Snapshot struct {
	EntryPrice float64 `json:"entry_price"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Capital    float64 `json:"capital"`

	OpenTimestamp          int64 `json:"open_timestamp"`
	TotalRebalances        int64 `json:"total_rebalances"`
	LastRebalanceTimestamp int64 `json:"last_rebalance_timestamp"`

	// Vault counters, advisory only.
	DepositedBase    float64 `json:"deposited_base"`
	DepositedQuote   float64 `json:"deposited_quote"`
	TotalDeposits    int64   `json:"total_deposits"`
	TotalWithdrawals int64   `json:"total_withdrawals"`

	AgentAuthorized       bool  `json:"agent_authorized"`
	TotalDecisions        int64 `json:"total_decisions"`
	LastDecisionTimestamp int64 `json:"last_decision_timestamp"`
	LastDecisionAction    int64 `json:"last_decision_action"`

	AppID uint64 `json:"app_id"`

	// OwnerID scopes store records; empty means a read-only global view.
	OwnerID string `json:"owner_id,omitempty"`
	Source  Source `json:"source"`
}

// Empty returns the canonical zeroed snapshot for the given app.
func Empty(appID uint64, owner string) Snapshot {
	return Snapshot{AppID: appID, OwnerID: owner, Source: SourceEmpty}
}

// HasPosition reports whether the snapshot describes an opened range.
func (s Snapshot) HasPosition() bool {
	return s.EntryPrice > 0
}

// InRange reports whether price sits inside the position bounds (inclusive).
func (s Snapshot) InRange(price float64) bool {
	return s.LowerBound <= price && price <= s.UpperBound
}

// PositionStatus is the lifecycle state of a store record.
type PositionStatus string

const (
	StatusActive PositionStatus = "active"
	StatusClosed PositionStatus = "closed"
)

// StoredPosition is one row of the position store. Exactly one active row may
// exist per owner; Save archives any previous active row as closed.
type StoredPosition struct {
	ID              int64          `json:"id"`
	Owner           string         `json:"owner"`
	Pair            string         `json:"pair"`
	Pool            string         `json:"pool"`
	EntryPrice      float64        `json:"entry_price"`
	LowerBound      float64        `json:"lower_bound"`
	UpperBound      float64        `json:"upper_bound"`
	Capital         float64        `json:"capital"`
	OpenTimestamp   int64          `json:"open_timestamp"`
	TotalRebalances int64          `json:"total_rebalances"`
	Status          PositionStatus `json:"status"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	AppID           uint64         `json:"app_id"`
}

// Depositor tracks one depositor's contribution to the shared range.
type Depositor struct {
	Owner          string  `json:"owner"`
	BaseDeposited  float64 `json:"base_deposited"`
	QuoteDeposited float64 `json:"quote_deposited"`
	JoinTx         string  `json:"join_tx,omitempty"`
}
