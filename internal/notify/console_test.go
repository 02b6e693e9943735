package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Div1912/Ageis/internal/types"
)

func TestCycleWithoutPosition(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.Cycle(types.Snapshot{Source: types.SourceEmpty}, 0.18, types.Decision{})

	assert.Contains(t, buf.String(), "no active position")
	assert.Contains(t, buf.String(), "$0.18")
}

func TestCyclePrintsDecision(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	snap := types.Snapshot{
		EntryPrice: 0.19,
		LowerBound: 0.156,
		UpperBound: 0.232,
		Capital:    5000,
	}
	d := types.Decision{
		Action:     types.ActionHold,
		Reason:     "In range, ~12h predicted, fees +$4.79/day",
		InRange:    true,
		Confidence: 0.9,
	}
	c.Cycle(snap, 0.19, d)

	out := buf.String()
	assert.Contains(t, out, "IN RANGE")
	assert.Contains(t, out, "$5,000.00")
	assert.Contains(t, out, "HOLD")
	assert.Contains(t, out, "confidence 0.90")
}

func TestCycleOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	snap := types.Snapshot{EntryPrice: 0.19, LowerBound: 0.156, UpperBound: 0.232, Capital: 5000}
	c.Cycle(snap, 0.25, types.Decision{Action: types.ActionRebalance, Reason: "Out of range", InRange: false, Confidence: 0.85})

	assert.Contains(t, buf.String(), "OUT OF RANGE")
	assert.Contains(t, buf.String(), "REBALANCE")
}

func TestDecisionsTable(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.Decisions([]types.DecisionRecord{
		{Timestamp: 1700000100, Action: types.ActionRebalance, Price: 0.25, Reason: "Out of range", FeeProjection: 33.56, SwapCost: 4.20, Confidence: 0.85},
		{Timestamp: 1700000000, Action: types.ActionHold, Price: 0.19, Reason: "In range", Confidence: 0.9},
	})

	out := buf.String()
	assert.Contains(t, out, "REBALANCE")
	assert.Contains(t, out, "HOLD")
	assert.Contains(t, out, "Out of range")
}

func TestDecisionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.Decisions(nil)
	assert.Contains(t, buf.String(), "no decisions recorded yet")
}

func TestRebalancePrintsRange(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.Rebalance(types.RebalanceEvent{TxID: "TXREBAL1", Timestamp: 1700000100, NewLower: 0.16, NewUpper: 0.31})

	out := buf.String()
	assert.Contains(t, out, "REBALANCED")
	assert.Contains(t, out, "TXREBAL1")
	assert.Contains(t, out, "$0.16")
	assert.Contains(t, out, "$0.31")
}
