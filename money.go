package stripebridge

import (
	"github.com/shopspring/decimal"
)

// MinorUnits converts a decimal currency amount to integer minor units
// (4999 for 49.99). Amounts are shifted by two and rounded half away from
// zero, matching how the order pipeline prices items.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a decimal amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(-2)
}
