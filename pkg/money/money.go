// Package money holds the fixed-point and clock primitives shared by the
// ledger engine. All monetary values are rounded to 2 decimals after every
// arithmetic step so repeated reconciliations cannot accumulate drift.
package money

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultCompoundRate is the growth applied per compounding period.
	DefaultCompoundRate = 0.20

	// DefaultCompoundInterval is the fixed wall-clock length of one
	// compounding period. Periods are anchored to the previous boundary,
	// not to calendar months.
	DefaultCompoundInterval = 30 * 24 * time.Hour

	// DefaultAuditTolerance is the rounding difference allowed when the
	// auditor compares cached values against their recomputation.
	DefaultAuditTolerance = 0.01
)

// epsilon is the threshold below which a delta is treated as zero.
var epsilon = decimal.New(1, -9) // 1e-9

// Round rounds a monetary value to 2 decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Negligible reports whether |d| <= 1e-9 and therefore must not produce an
// event, a ledger row, or a schedule change.
func Negligible(d decimal.Decimal) bool {
	return d.Abs().Cmp(epsilon) <= 0
}

// Compounded returns the repayable ceiling established once at disbursement:
// round(max(amount, 0) * (1 + rate), 2).
func Compounded(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	base := amount
	if base.IsNegative() {
		base = decimal.Zero
	}
	return Round(base.Mul(decimal.NewFromInt(1).Add(rate)))
}

// DefaultLocation is the business timezone. Timestamps stored without a zone
// are interpreted in it rather than shifted.
var DefaultLocation = mustLoadLocation("Asia/Kuala_Lumpur")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MYT", 8*60*60)
	}
	return loc
}

// Now returns the current time in the business timezone.
func Now() time.Time {
	return time.Now().In(DefaultLocation)
}
