package tier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCatalogDefinitions(t *testing.T) {
	growth, err := Lookup(CodeGrowth)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), growth.MonthlyFee)
	assert.Equal(t, int64(0), growth.EntryFee)
	assert.True(t, growth.CommissionRate.Equal(decimal.RequireFromString("0.10")))

	partner, err := Lookup(CodePartner)
	assert.NoError(t, err)
	assert.Equal(t, int64(9800), partner.MonthlyFee)
	assert.Equal(t, int64(50000), partner.EntryFee)
	assert.True(t, partner.CommissionRate.Equal(decimal.RequireFromString("0.20")))
}

func TestLookupUnknownTier(t *testing.T) {
	_, err := Lookup(Code("platinum"))
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = RateFor(Code(""))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(CodeGrowth))
	assert.True(t, Valid(CodePartner))
	assert.False(t, Valid(Code("vip")))
}

func TestGrowthRateFallback(t *testing.T) {
	assert.True(t, GrowthRate().Equal(decimal.RequireFromString("0.10")))
}
