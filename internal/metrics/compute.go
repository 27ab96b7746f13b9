// Package metrics holds the fixed-point arithmetic shared by the statistics code.
package metrics

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by divisions.
const Precision = 20

var hundred = decimal.NewFromInt(100)

// Sum returns the sum of values.
func Sum(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}

// Div divides a by b, returning nil when b is zero.
func Div(a, b decimal.Decimal) *decimal.Decimal {
	if b.IsZero() {
		return nil
	}
	q := a.DivRound(b, Precision)
	return &q
}

// DivInt divides a by an integer count, returning nil when n is zero.
func DivInt(a decimal.Decimal, n int) *decimal.Decimal {
	return Div(a, decimal.NewFromInt(int64(n)))
}

// Percent returns a / b x 100, or nil when b is zero.
func Percent(a, b decimal.Decimal) *decimal.Decimal {
	if b.IsZero() {
		return nil
	}
	p := a.Mul(hundred).DivRound(b, Precision)
	return &p
}

// PercentOf returns part / total x 100 for counts, or nil when total is zero.
func PercentOf(part, total int) *decimal.Decimal {
	return Percent(decimal.NewFromInt(int64(part)), decimal.NewFromInt(int64(total)))
}

// Mean calculates the arithmetic mean, or nil for no values.
func Mean(values []decimal.Decimal) *decimal.Decimal {
	return DivInt(Sum(values), len(values))
}

// Median returns the 50th percentile, or nil for no values.
// With an even count it is the average of the two middle values.
func Median(values []decimal.Decimal) *decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})
	m := Percentile(sorted, decimal.NewFromFloat(0.5))
	return &m
}

// Percentile uses linear interpolation between closest ranks.
// sorted must be pre-sorted ASC. p is the percentile as a fraction (0.10 = 10th).
func Percentile(sorted []decimal.Decimal, p decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p.Mul(decimal.NewFromInt(int64(n - 1)))
	lower := int(idx.IntPart())
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx.Sub(decimal.NewFromInt(int64(lower)))
	return sorted[lower].Add(frac.Mul(sorted[upper].Sub(sorted[lower])))
}

// Ptr returns a pointer to a copy of d.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
