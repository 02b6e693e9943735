// Package notify renders agent cycle output for the terminal.
package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Div1912/Ageis/internal/finance"
	"github.com/Div1912/Ageis/internal/types"
)

// Console writes cycle summaries and decision tables to a terminal.
type Console struct {
	out io.Writer
}

// NewConsole writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter writes to w. Used by tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Cycle prints one agent evaluation: the position line, then the decision.
func (c *Console) Cycle(snap types.Snapshot, price float64, d types.Decision) {
	now := time.Now().Format("15:04:05")
	if !snap.HasPosition() {
		fmt.Fprintf(c.out, "[%s] no active position (price %s)\n", now, finance.FormatCurrency(price))
		return
	}

	rangeState := "IN RANGE"
	if !d.InRange {
		rangeState = "OUT OF RANGE"
	}
	fmt.Fprintf(c.out, "[%s] price %s | range %s - %s | %s | capital %s\n",
		now,
		finance.FormatCurrency(price),
		finance.FormatCurrency(snap.LowerBound),
		finance.FormatCurrency(snap.UpperBound),
		rangeState,
		finance.FormatCurrency(snap.Capital),
	)
	fmt.Fprintf(c.out, "  -> %s: %s (confidence %.2f)\n", d.Action, d.Reason, d.Confidence)
}

// Decisions prints the recent decision log as a table, newest first.
func (c *Console) Decisions(records []types.DecisionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "no decisions recorded yet")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Action", "Price", "Fees/wk", "Cost", "Hrs", "Conf", "Reason")
	for _, rec := range records {
		table.Append(
			time.Unix(rec.Timestamp, 0).Format("01-02 15:04"),
			string(rec.Action),
			fmt.Sprintf("%.4f", rec.Price),
			finance.FormatCurrency(rec.FeeProjection),
			finance.FormatCurrency(rec.SwapCost),
			fmt.Sprintf("%.1f", rec.HoursInRange),
			fmt.Sprintf("%.2f", rec.Confidence),
			rec.Reason,
		)
	}
	table.Render()
}

// Rebalance prints a confirmed rebalance.
func (c *Console) Rebalance(event types.RebalanceEvent) {
	fmt.Fprintf(c.out, "[%s] REBALANCED -> new range %s - %s (tx %s)\n",
		time.Unix(event.Timestamp, 0).Format("15:04:05"),
		finance.FormatCurrency(event.NewLower),
		finance.FormatCurrency(event.NewUpper),
		event.TxID,
	)
}
