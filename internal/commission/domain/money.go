package domain

import "github.com/shopspring/decimal"

var (
	taxDivisor          = decimal.RequireFromString("1.1")
	firstOrderBonusRate = decimal.RequireFromString("0.05")
)

// netOfTax strips the 10% consumption tax from a tax-inclusive amount without
// rounding. Commission math rounds once, on the final figure, so the exact
// net stays in decimal form until then.
func netOfTax(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(taxDivisor)
}

// NetOfTax is the whole-yen net amount, rounded half up. Used for the stored
// net_amount only; it is never an input to commission math.
func NetOfTax(amount int64) int64 {
	return netOfTax(amount).Round(0).IntPart()
}

// CommissionFor applies the rate to the net of the tax-inclusive amount,
// rounding half up to whole yen.
func CommissionFor(amount int64, rate decimal.Decimal) int64 {
	return netOfTax(amount).Mul(rate).Round(0).IntPart()
}

// FirstOrderBonusFor is the one-time 5% bonus on the net of a partner's first
// booking, rounded the same way.
func FirstOrderBonusFor(amount int64) int64 {
	return netOfTax(amount).Mul(firstOrderBonusRate).Round(0).IntPart()
}
