package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Allocation percentages must sum to 100 within this band. The band is a
// policy value, not part of the algorithm: it started at 0.01 and was widened
// to 0.05 to absorb compounding rounding error on multi-cost-center splits.
//
// Set via env:
// - ALLOCATION_TOLERANCE_PCT=0.05
const defaultAllocationTolerancePct = "0.05"

func AllocationTolerance() decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv("ALLOCATION_TOLERANCE_PCT"))
	if raw == "" {
		raw = defaultAllocationTolerancePct
	}
	tol, err := decimal.NewFromString(raw)
	if err != nil || tol.IsNegative() {
		tol, _ = decimal.NewFromString(defaultAllocationTolerancePct)
	}
	return tol
}
