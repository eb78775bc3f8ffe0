package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNetOfTax(t *testing.T) {
	// ¥220,000 tax-inclusive -> ¥200,000 net of the 10% consumption tax.
	assert.Equal(t, int64(200000), NetOfTax(220000))

	// 10,000 / 1.1 = 9090.90..., rounds half up to 9091.
	assert.Equal(t, int64(9091), NetOfTax(10000))

	assert.Equal(t, int64(100), NetOfTax(110))
	assert.Equal(t, int64(1), NetOfTax(1))
}

func TestCommissionFor(t *testing.T) {
	growth := decimal.RequireFromString("0.10")
	partner := decimal.RequireFromString("0.20")

	assert.Equal(t, int64(20000), CommissionFor(220000, growth))
	assert.Equal(t, int64(40000), CommissionFor(220000, partner))

	// 10,000 / 1.1 * 0.10 = 909.09... -> 909.
	assert.Equal(t, int64(909), CommissionFor(10000, growth))
	// 10,000 / 1.1 * 0.20 = 1818.18... -> 1818.
	assert.Equal(t, int64(1818), CommissionFor(10000, partner))
}

func TestCommissionForRoundsOnce(t *testing.T) {
	growth := decimal.RequireFromString("0.10")

	// 115 / 1.1 * 0.10 = 10.4545... -> 10. Rounding the net to 105 yen
	// first would give 10.5 -> 11.
	assert.Equal(t, int64(10), CommissionFor(115, growth))

	// 126 / 1.1 * 0.10 = 11.4545... -> 11, not 12 via the rounded net 115.
	assert.Equal(t, int64(11), CommissionFor(126, growth))
}

func TestFirstOrderBonusFor(t *testing.T) {
	assert.Equal(t, int64(10000), FirstOrderBonusFor(220000))
	// 10,000 / 1.1 * 0.05 = 454.54... -> 455 (half up).
	assert.Equal(t, int64(455), FirstOrderBonusFor(10000))
	// 115 / 1.1 * 0.05 = 5.227... -> 5.
	assert.Equal(t, int64(5), FirstOrderBonusFor(115))
	assert.Equal(t, int64(0), FirstOrderBonusFor(0))
}
