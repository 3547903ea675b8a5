package services

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// addAmount returns a+b, or false when the result does not fit a BIGINT column.
func addAmount(a, b int64) (int64, bool) {
	sum := decimal.NewFromInt(a).Add(decimal.NewFromInt(b))
	if sum.GreaterThan(maxAmount) || sum.LessThan(minAmount) {
		return 0, false
	}
	return sum.IntPart(), true
}

// sumAmounts is the exact sum of the entry amounts. It never wraps, so a set
// whose int64 running total overflows and comes back to zero is still caught.
func sumAmounts(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, entry := range entries {
		sum = sum.Add(decimal.NewFromInt(entry.Amount))
	}
	return sum
}
