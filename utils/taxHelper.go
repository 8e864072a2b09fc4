package utils

import "github.com/shopspring/decimal"

var decimalOneHundred = decimal.NewFromInt(100)

// PercentOf returns part / whole * 100 rounded to 2 places, or 0 when whole is 0.
func PercentOf(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(decimalOneHundred).DivRound(whole, 2)
}

// ExcludeTax removes a known tax amount from a gross amount.
func ExcludeTax(gross decimal.Decimal, taxAmount decimal.Decimal) decimal.Decimal {
	return gross.Sub(taxAmount)
}
