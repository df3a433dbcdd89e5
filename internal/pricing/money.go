package pricing

import "github.com/shopspring/decimal"

var (
	// GSTRate is the Australian goods and services tax applied to the
	// discounted subtotal plus delivery.
	GSTRate = decimal.RequireFromString("0.10")

	hundred = decimal.NewFromInt(100)
)

// Round2 quantises to cents with banker's rounding.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
