package types

// Action is the outcome of one decision engine evaluation. The numeric codes
// match the on-chain decision log encoding.
type Action string

const (
	ActionHold      Action = "HOLD"
	ActionRebalance Action = "REBALANCE"
	ActionAlert     Action = "ALERT"
	ActionSkip      Action = "SKIP"
)

// ActionCode returns the on-chain encoding of an action (0=HOLD, 1=REBALANCE,
// 2=ALERT, 3=SKIP).
func (a Action) Code() int64 {
	switch a {
	case ActionRebalance:
		return 1
	case ActionAlert:
		return 2
	case ActionSkip:
		return 3
	default:
		return 0
	}
}

// ActionFromCode is the inverse of Action.Code. Unknown codes map to HOLD.
func ActionFromCode(code int64) Action {
	switch code {
	case 1:
		return ActionRebalance
	case 2:
		return ActionAlert
	case 3:
		return ActionSkip
	default:
		return ActionHold
	}
}

// Decision is the full output of one engine evaluation.
type Decision struct {
	Action        Action  `json:"action"`
	Reason        string  `json:"reason"`
	InRange       bool    `json:"in_range"`
	DailyFee      float64 `json:"daily_fee"`
	FeeProjection float64 `json:"fee_projection"` // projected 7-day fee capture
	SwapCost      float64 `json:"swap_cost"`
	NetBenefit    float64 `json:"net_benefit"`
	HoursInRange  float64 `json:"hours_in_range"`
	Confidence    float64 `json:"confidence"`

	// Candidate bounds, populated when Action is REBALANCE.
	NewLower float64 `json:"new_lower,omitempty"`
	NewUpper float64 `json:"new_upper,omitempty"`
}

// DecisionRecord is one append-only decision log line. Records are never
// rewritten, only appended, ordered by timestamp.
type DecisionRecord struct {
	ID            int64   `json:"id,omitempty"`
	Timestamp     int64   `json:"timestamp"`
	Action        Action  `json:"action"`
	Price         float64 `json:"price"`
	Reason        string  `json:"reason"`
	FeeProjection float64 `json:"fee_projection"`
	SwapCost      float64 `json:"swap_cost"`
	HoursInRange  float64 `json:"hours_in_range"`
	Confidence    float64 `json:"confidence"`
	TxID          string  `json:"tx_id,omitempty"`
}

// RebalanceEvent is a confirmed on-chain rebalance, sourced from the indexer
// transaction history.
type RebalanceEvent struct {
	TxID      string  `json:"tx_id"`
	Timestamp int64   `json:"timestamp"`
	Fee       float64 `json:"fee"`
	NewLower  float64 `json:"new_lower,omitempty"`
	NewUpper  float64 `json:"new_upper,omitempty"`
}
