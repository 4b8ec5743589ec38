package models

import (
	"fmt"
	"regexp"
)

// Cost-account codes are exactly LLL-DDDD: a 3-digit location segment and a
// 4-digit department-suffixed segment, e.g. "421-5000". The first two digits
// of the second segment are the department code ("50" above).
var costAccountPattern = regexp.MustCompile(`^\d{3}-\d{4}$`)

type CostAccountCode string

// StructuralError marks input rejected before persistence: a malformed code
// or percentage that must never reach the database.
type StructuralError struct {
	Field  string
	Value  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func ParseCostAccountCode(raw string) (CostAccountCode, error) {
	if !costAccountPattern.MatchString(raw) {
		return "", &StructuralError{
			Field:  "cost_account_code",
			Value:  raw,
			Reason: "must match LLL-DDDD (3-digit location, 4-digit department code)",
		}
	}
	return CostAccountCode(raw), nil
}

func (c CostAccountCode) String() string {
	return string(c)
}

// LocationCode returns the 3-digit location segment.
func (c CostAccountCode) LocationCode() string {
	if len(c) < 3 {
		return ""
	}
	return string(c[:3])
}

// DepartmentCode returns the first 2 digits after the dash.
func (c CostAccountCode) DepartmentCode() string {
	if len(c) < 6 {
		return ""
	}
	return string(c[4:6])
}
