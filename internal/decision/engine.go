/*

Package decision holds the rebalance decision engine: given the reconciled
snapshot and the current price it produces exactly one of HOLD, REBALANCE,
ALERT or SKIP, with a fee-versus-cost justification attached.

The guard order is fixed: cooldown first, then the buffer zone, then the
cost-benefit evaluation. A rebalance is only ever recommended when the
projected weekly fee capture clears the estimated swap cost by the configured
margin.

*/

package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/finance"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

// Engine evaluates one position against one price. Safe for use from a
// single goroutine; the agent loop owns it.
type Engine struct {
	cfg      *config.Config
	vol      *VolatilityModel
	log      zerolog.Logger
	lastTrig time.Time // last time this engine recommended REBALANCE

	now func() time.Time
}

// NewEngine builds an engine with a fresh volatility model.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		cfg: cfg,
		vol: NewVolatilityModel(cfg.VolatilityWindowHrs),
		log: logger.GetForComponent("decision_engine"),
		now: time.Now,
	}
}

// Volatility exposes the model so the agent loop can report sample counts.
func (e *Engine) Volatility() *VolatilityModel {
	return e.vol
}

// Evaluate runs the decision logic for one cycle. It records the price into
// the volatility model as a side effect.
func (e *Engine) Evaluate(snap types.Snapshot, price float64) types.Decision {
	e.vol.Observe(price)

	inRange := snap.InRange(price)
	swapCost := e.cfg.SwapCostEstimate

	// Guard 1: cooldown. The engine's own trigger time and the chain's
	// last rebalance timestamp both count; whichever is later wins.
	lastRebalance := e.lastTrig
	if chainTime := time.Unix(snap.LastRebalanceTimestamp, 0); snap.LastRebalanceTimestamp > 0 && chainTime.After(lastRebalance) {
		lastRebalance = chainTime
	}
	if !lastRebalance.IsZero() {
		since := e.now().Sub(lastRebalance)
		if since < e.cfg.RebalanceCooldown {
			remaining := (e.cfg.RebalanceCooldown - since).Round(time.Second)
			return types.Decision{
				Action:     types.ActionSkip,
				Reason:     fmt.Sprintf("Cooldown: %s remaining (min %s between rebalances)", remaining, e.cfg.RebalanceCooldown),
				InRange:    inRange,
				SwapCost:   swapCost,
				Confidence: 0.3,
			}
		}
	}

	// Guard 2: buffer zone. Just outside a bound usually means the price
	// oscillates back; rebalancing here would churn.
	if !inRange {
		if dist := e.boundaryDistance(snap, price); dist < e.cfg.BufferZonePct/100.0 {
			return types.Decision{
				Action:     types.ActionHold,
				Reason:     fmt.Sprintf("Buffer zone: price %.1f%% from boundary (< %.1f%% threshold)", dist*100, e.cfg.BufferZonePct),
				InRange:    false,
				SwapCost:   swapCost,
				Confidence: 0.6,
			}
		}
	}

	dailyFee := 0.0
	if inRange {
		dailyFee = finance.FeesEarned(snap.Capital, e.cfg.AnnualFeeRate, 1)
	}
	weeklyFee := dailyFee * 7

	hoursInRange := e.vol.PredictHoursInRange(price, snap.LowerBound, snap.UpperBound)

	if inRange {
		if hoursInRange < e.cfg.MinHoursInRange {
			// Approaching a boundary; worth moving the range early?
			netBenefit := weeklyFee - swapCost
			if weeklyFee > swapCost*e.cfg.CostBenefitMargin {
				e.lastTrig = e.now()
				return types.Decision{
					Action:        types.ActionRebalance,
					Reason:        fmt.Sprintf("Preemptive: %.1fh to boundary, net +$%.2f", hoursInRange, netBenefit),
					InRange:       true,
					DailyFee:      dailyFee,
					FeeProjection: weeklyFee,
					SwapCost:      swapCost,
					NetBenefit:    netBenefit,
					HoursInRange:  hoursInRange,
					Confidence:    0.7,
					NewLower:      price * (1 - e.cfg.RangeWidthLower),
					NewUpper:      price * (1 + e.cfg.RangeWidthUpper),
				}
			}
			return types.Decision{
				Action:        types.ActionAlert,
				Reason:        fmt.Sprintf("Near boundary (%.1fh), but cost too high", hoursInRange),
				InRange:       true,
				DailyFee:      dailyFee,
				FeeProjection: weeklyFee,
				SwapCost:      swapCost,
				NetBenefit:    netBenefit,
				HoursInRange:  hoursInRange,
				Confidence:    0.5,
			}
		}
		return types.Decision{
			Action:        types.ActionHold,
			Reason:        fmt.Sprintf("In range, ~%.0fh predicted, fees +$%.2f/day", hoursInRange, dailyFee),
			InRange:       true,
			DailyFee:      dailyFee,
			FeeProjection: weeklyFee,
			SwapCost:      swapCost,
			NetBenefit:    weeklyFee - swapCost,
			HoursInRange:  hoursInRange,
			Confidence:    0.9,
		}
	}

	// Out of range: a re-centered range would resume fee capture.
	projectedDaily := finance.FeesEarned(snap.Capital, e.cfg.AnnualFeeRate, 1)
	projectedWeekly := projectedDaily * 7

	if projectedWeekly > swapCost*e.cfg.CostBenefitMargin {
		e.lastTrig = e.now()
		return types.Decision{
			Action:        types.ActionRebalance,
			Reason:        fmt.Sprintf("Out of range. Projected +$%.2f/wk > cost $%.2f", projectedWeekly, swapCost),
			InRange:       false,
			DailyFee:      projectedDaily,
			FeeProjection: projectedWeekly,
			SwapCost:      swapCost,
			NetBenefit:    projectedWeekly - swapCost,
			Confidence:    0.85,
			NewLower:      price * (1 - e.cfg.RangeWidthLower),
			NewUpper:      price * (1 + e.cfg.RangeWidthUpper),
		}
	}
	return types.Decision{
		Action:        types.ActionSkip,
		Reason:        fmt.Sprintf("Out of range, but cost $%.2f > benefit $%.2f", swapCost, projectedWeekly),
		InRange:       false,
		FeeProjection: projectedWeekly,
		SwapCost:      swapCost,
		Confidence:    0.6,
	}
}

// boundaryDistance returns the relative distance from price to the nearest
// bound, as a fraction of that bound.
func (e *Engine) boundaryDistance(snap types.Snapshot, price float64) float64 {
	distLower := math.Inf(1)
	if snap.LowerBound > 0 {
		distLower = math.Abs(price-snap.LowerBound) / snap.LowerBound
	}
	distUpper := math.Inf(1)
	if snap.UpperBound > 0 {
		distUpper = math.Abs(price-snap.UpperBound) / snap.UpperBound
	}
	return math.Min(distLower, distUpper)
}
