/*

This file contains the pure financial formulas for range positions: impermanent
loss, position value, the HODL baseline, fee accrual, and net P&L. These are
the only places these quantities are computed; every consumer calls through
here instead of recomputing inline.

*/

package finance

import "math"

const (
	// DefaultAnnualFeeRate is the configured fee APR estimate on deployed
	// capital, not a measured value.
	DefaultAnnualFeeRate = 0.35

	// DefaultSwapCost is the flat per-rebalance cost estimate in quote
	// units, an approximation rather than a measured value.
	DefaultSwapCost = 4.20

	daysPerYear = 365.0
)

// ImpermanentLossFraction returns the loss fraction of a constant-product
// range position relative to holding, for the price ratio
// r = currentPrice/entryPrice:
//
//	IL = 2*sqrt(r)/(1+r) - 1
//
// The result is <= 0 and symmetric under r -> 1/r. Returns 0 when entryPrice
// is not positive.
func ImpermanentLossFraction(entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	r := currentPrice / entryPrice
	if r <= 0 {
		return 0
	}
	return 2*math.Sqrt(r)/(1+r) - 1
}

// PositionValue approximates the current value of a range position as
// capital * sqrt(currentPrice/entryPrice). Returns capital unchanged when
// entryPrice is not positive.
func PositionValue(capital, entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 {
		return capital
	}
	r := currentPrice / entryPrice
	if r < 0 {
		return capital
	}
	return capital * math.Sqrt(r)
}

// HodlValue is the counterfactual value of the same capital split 50/50 into
// base and quote assets at entry and simply held.
func HodlValue(capital, entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 {
		return capital
	}
	return capital/2 + (capital/2/entryPrice)*currentPrice
}

// FeesEarned is the linear fee accrual on deployed capital over elapsedDays
// at the given annual rate. Returns 0 when elapsedDays <= 0.
func FeesEarned(capital, annualFeeRate, elapsedDays float64) float64 {
	if elapsedDays <= 0 || capital <= 0 {
		return 0
	}
	return capital * annualFeeRate * elapsedDays / daysPerYear
}

// ILDollar is the absolute impermanent loss in quote units.
func ILDollar(capital, entryPrice, currentPrice float64) float64 {
	return math.Abs(ImpermanentLossFraction(entryPrice, currentPrice) * capital)
}

// NetPnL is the single canonical net-P&L formula: position value versus the
// HODL baseline, minus cumulative swap costs.
func NetPnL(positionValueNow, hodlValueNow, cumulativeSwapCost float64) float64 {
	return (positionValueNow - hodlValueNow) - cumulativeSwapCost
}

// SwapLosses estimates realized cumulative swap cost from the rebalance
// counter and a flat per-rebalance estimate. This is the accounting used by
// NetPnL consumers; a separately tracked running total is not maintained.
func SwapLosses(totalRebalances int64, perRebalanceCost float64) float64 {
	if totalRebalances <= 0 {
		return 0
	}
	return float64(totalRebalances) * perRebalanceCost
}
