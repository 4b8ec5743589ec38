package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/shopspring/decimal"
)

// OverrideAllocation is one parsed line of a manual override.
type OverrideAllocation struct {
	CostAccountCode models.CostAccountCode
	Percentage      decimal.Decimal
}

// OverrideParseError rejects malformed or non-summing override text with the
// specific offending tokens. Nothing is applied on rejection.
type OverrideParseError struct {
	Tokens []string
	Reason string
}

func (e *OverrideParseError) Error() string {
	if len(e.Tokens) == 0 {
		return fmt.Sprintf("override rejected: %s", e.Reason)
	}
	return fmt.Sprintf("override rejected: %s (offending: %s)", e.Reason, strings.Join(e.Tokens, "; "))
}

var hundred = decimal.NewFromInt(100)

// ParseOverride parses free-text of the form "code: pct[, code: pct]*" with
// an optional percent sign, e.g. "421-5000: 60, 422-5000: 40%". All defects
// are collected before rejecting, so one pass surfaces every bad token, and
// the percentages must sum to 100 within the same tolerance band used for
// source-derived rules.
func ParseOverride(text string, tolerance decimal.Decimal) ([]OverrideAllocation, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &OverrideParseError{Reason: "empty override text"}
	}

	var allocations []OverrideAllocation
	var badTokens []string
	seen := map[models.CostAccountCode]bool{}
	total := decimal.Zero

	for _, part := range strings.Split(trimmed, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}

		codeRaw, pctRaw, found := strings.Cut(token, ":")
		if !found {
			badTokens = append(badTokens, token)
			continue
		}

		code, err := models.ParseCostAccountCode(strings.TrimSpace(codeRaw))
		if err != nil {
			badTokens = append(badTokens, token)
			continue
		}
		if seen[code] {
			badTokens = append(badTokens, token)
			continue
		}

		pctText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(pctRaw), "%"))
		pct, err := decimal.NewFromString(pctText)
		if err != nil || pct.IsNegative() || pct.GreaterThan(hundred) {
			badTokens = append(badTokens, token)
			continue
		}

		seen[code] = true
		total = total.Add(pct)
		allocations = append(allocations, OverrideAllocation{
			CostAccountCode: code,
			Percentage:      pct.Round(2),
		})
	}

	if len(badTokens) > 0 {
		return nil, &OverrideParseError{
			Tokens: badTokens,
			Reason: "malformed code or percentage",
		}
	}
	if len(allocations) == 0 {
		return nil, &OverrideParseError{Reason: "no allocations found"}
	}
	if total.Sub(hundred).Abs().GreaterThanOrEqual(tolerance) {
		return nil, &OverrideParseError{
			Reason: fmt.Sprintf("percentages sum to %s, not 100", total.String()),
		}
	}
	return allocations, nil
}
