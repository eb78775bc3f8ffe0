// Package tier defines the static partner tier catalog. Tier definitions are
// deployment-time constants; changing a rate or fee requires a deploy.
package tier

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Code string

const (
	CodeGrowth  Code = "growth"
	CodePartner Code = "partner"
)

var ErrUnknownTier = errors.New("unknown_tier")

// Definition describes one entry of the tier catalog.
type Definition struct {
	Code           Code
	MonthlyFee     int64
	EntryFee       int64
	CommissionRate decimal.Decimal
}

var catalog = map[Code]Definition{
	CodeGrowth: {
		Code:           CodeGrowth,
		MonthlyFee:     0,
		EntryFee:       0,
		CommissionRate: decimal.RequireFromString("0.10"),
	},
	CodePartner: {
		Code:           CodePartner,
		MonthlyFee:     9800,
		EntryFee:       50000,
		CommissionRate: decimal.RequireFromString("0.20"),
	},
}

// Lookup returns the definition for code.
func Lookup(code Code) (Definition, error) {
	def, ok := catalog[code]
	if !ok {
		return Definition{}, ErrUnknownTier
	}
	return def, nil
}

// RateFor returns the commission rate for code.
func RateFor(code Code) (decimal.Decimal, error) {
	def, err := Lookup(code)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return def.CommissionRate, nil
}

// GrowthRate is the fallback rate applied whenever a partner is not entitled
// to an elevated tier.
func GrowthRate() decimal.Decimal {
	return catalog[CodeGrowth].CommissionRate
}

// Valid reports whether code names a catalog entry.
func Valid(code Code) bool {
	_, ok := catalog[code]
	return ok
}
