package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signal-trading-bot/internal/types"
)

// FallbackStopPct is the assumed per-unit risk when a signal has no stop.
const FallbackStopPct = 0.02

// CalculateSafeQuantity sizes a position so that hitting the stop loses
// equity*riskPct. Leverage is not applied here.
func CalculateSafeQuantity(equity, entry float64, stopLoss *float64, riskPct float64) types.PositionSize {
	var size types.PositionSize
	if entry <= 0 || equity <= 0 || riskPct <= 0 {
		size.Warnings = append(size.Warnings, "cannot size: equity, entry and risk pct must be positive")
		return size
	}

	e := decimal.NewFromFloat(entry)
	riskAmount := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(riskPct))

	var perUnit decimal.Decimal
	if stopLoss != nil && *stopLoss > 0 {
		perUnit = e.Sub(decimal.NewFromFloat(*stopLoss)).Abs()
	} else {
		perUnit = e.Mul(decimal.NewFromFloat(FallbackStopPct))
		size.Warnings = append(size.Warnings, fmt.Sprintf("no stop loss, assuming %.0f%% risk per unit", FallbackStopPct*100))
	}
	if perUnit.IsZero() {
		size.Warnings = append(size.Warnings, "stop loss equals entry, cannot size")
		return size
	}

	qty := riskAmount.Div(perUnit)
	size.Quantity = qty.InexactFloat64()
	size.PositionValue = qty.Mul(e).InexactFloat64()
	size.RiskAmount = riskAmount.InexactFloat64()
	size.RiskPerUnit = perUnit.InexactFloat64()
	return size
}

// capPosition scales size down so its value stays within maxValue.
func capPosition(size types.PositionSize, entry, maxValue float64) types.PositionSize {
	if maxValue <= 0 || size.PositionValue <= maxValue {
		return size
	}
	e := decimal.NewFromFloat(entry)
	qty := decimal.NewFromFloat(maxValue).Div(e)
	size.Warnings = append(size.Warnings,
		fmt.Sprintf("position value %.2f capped to %.2f", size.PositionValue, maxValue))
	size.Quantity = qty.InexactFloat64()
	size.PositionValue = qty.Mul(e).InexactFloat64()
	size.RiskAmount = qty.Mul(decimal.NewFromFloat(size.RiskPerUnit)).InexactFloat64()
	return size
}
