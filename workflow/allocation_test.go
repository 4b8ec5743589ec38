package workflow

import (
	"fmt"
	"testing"

	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustCode(t *testing.T, raw string) models.CostAccountCode {
	t.Helper()
	code, err := models.ParseCostAccountCode(raw)
	require.NoError(t, err)
	return code
}

func line(t *testing.T, employee, code, gl, amount string) costLine {
	t.Helper()
	return costLine{
		employeeCode:    employee,
		employeeName:    "Employee " + employee,
		costAccountCode: mustCode(t, code),
		glAccount:       gl,
		amount:          dec(amount),
	}
}

func TestBuildRules_SingleCodeIsFullAllocation(t *testing.T) {
	lines := []costLine{line(t, "E100", "910-9100", models.GLAccountSalaries, "2400.00")}

	rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.05"), "run-1")
	require.Len(t, rules, 1)
	assert.Equal(t, "910-9100", rules[0].CostAccountCode)
	assert.True(t, rules[0].Percentage.Equal(dec("100")))
	assert.True(t, rules[0].Amount.Equal(dec("2400.00")))
	assert.True(t, utils.DereferencePtr(rules[0].IsValid))
}

func TestBuildRules_RoundingResidueWithinBand(t *testing.T) {
	// Three equal splits round to 33.33 each; the set sums to 99.99.
	lines := []costLine{
		line(t, "E100", "421-5000", models.GLAccountSalaries, "500"),
		line(t, "E100", "422-5000", models.GLAccountSalaries, "500"),
		line(t, "E100", "423-5000", models.GLAccountSalaries, "500"),
	}

	rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.05"), "run-1")
	require.Len(t, rules, 3)
	for _, r := range rules {
		assert.True(t, r.Percentage.Equal(dec("33.33")))
		assert.True(t, utils.DereferencePtr(r.IsValid))
	}

	// Under the tighter historical band the same 0.01 residue is out: the
	// band is exclusive at its edge.
	rules = buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.01"), "run-1")
	for _, r := range rules {
		assert.False(t, utils.DereferencePtr(r.IsValid))
	}
}

func TestBuildRules_ToleranceIsConfigNotConstant(t *testing.T) {
	// Seven equal splits round to 14.29 each; the set sums to 100.03,
	// outside the 0.01 band but inside the 0.05 default.
	var lines []costLine
	for i := 0; i < 7; i++ {
		lines = append(lines, line(t, "E100", fmt.Sprintf("421-500%d", i), models.GLAccountSalaries, "100"))
	}

	rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.05"), "run-1")
	require.Len(t, rules, 7)
	for _, r := range rules {
		assert.True(t, utils.DereferencePtr(r.IsValid))
	}

	rules = buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.01"), "run-1")
	for _, r := range rules {
		assert.False(t, utils.DereferencePtr(r.IsValid))
	}
}

func TestBuildRules_LargeResidueInvalidUnderBothBands(t *testing.T) {
	// Twelve slivers of 0.125% each round up to 0.13; with the 98.5%
	// remainder the set sums to 100.06.
	var lines []costLine
	for i := 0; i < 12; i++ {
		lines = append(lines, line(t, "E100", fmt.Sprintf("421-50%02d", i), models.GLAccountSalaries, "1.25"))
	}
	lines = append(lines, line(t, "E100", "500-1000", models.GLAccountSalaries, "985"))

	for _, tolerance := range []decimal.Decimal{dec("0.05"), dec("0.01")} {
		rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, tolerance, "run-1")
		require.Len(t, rules, 13)
		for _, r := range rules {
			assert.False(t, utils.DereferencePtr(r.IsValid))
		}
	}
}

func TestBuildRules_ValidityIsPerEmployee(t *testing.T) {
	lines := []costLine{line(t, "E100", "421-5000", models.GLAccountSalaries, "1000")}
	for i := 0; i < 7; i++ {
		lines = append(lines, line(t, "E200", fmt.Sprintf("421-500%d", i), models.GLAccountSalaries, "100"))
	}

	rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.01"), "run-1")
	require.Len(t, rules, 8)
	for _, r := range rules {
		if r.EmployeeCode == "E100" {
			assert.True(t, utils.DereferencePtr(r.IsValid))
		} else {
			assert.False(t, utils.DereferencePtr(r.IsValid))
		}
	}

	result := summarize(models.AllocationSourceIQB, rules, 0)
	assert.Equal(t, 8, result.RulesCreated)
	assert.Equal(t, 1, result.ValidRules)
	assert.Equal(t, 7, result.InvalidRules)
}

func TestBuildRules_DeterministicAcrossInputOrder(t *testing.T) {
	forward := []costLine{
		line(t, "E300", "422-6000", models.GLAccountSuperannuation, "95"),
		line(t, "E100", "421-5000", models.GLAccountSalaries, "800"),
		line(t, "E300", "421-5000", models.GLAccountSalaries, "905"),
		line(t, "E200", "910-9100", models.GLAccountSalaries, "1200"),
		line(t, "E100", "421-5000", models.GLAccountSuperannuation, "200"),
	}
	reversed := make([]costLine, len(forward))
	for i, l := range forward {
		reversed[len(forward)-1-i] = l
	}

	first := buildRules("2025-11-30", models.AllocationSourceIQB, forward, dec("0.05"), "run-1")
	second := buildRules("2025-11-30", models.AllocationSourceIQB, reversed, dec("0.05"), "run-1")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].EmployeeCode, second[i].EmployeeCode)
		assert.Equal(t, first[i].CostAccountCode, second[i].CostAccountCode)
		assert.Equal(t, first[i].GLAccount, second[i].GLAccount)
		assert.True(t, first[i].Percentage.Equal(second[i].Percentage))
		assert.True(t, first[i].Amount.Equal(second[i].Amount))
	}
}

func TestBuildRules_ZeroTotalEmployeeSkipped(t *testing.T) {
	lines := []costLine{
		line(t, "E100", "421-5000", models.GLAccountSalaries, "0"),
		line(t, "E200", "421-5000", models.GLAccountSalaries, "100"),
	}

	rules := buildRules("2025-11-30", models.AllocationSourceIQB, lines, dec("0.05"), "run-1")
	require.Len(t, rules, 1)
	assert.Equal(t, "E200", rules[0].EmployeeCode)
}

func TestIQBCostLines_ExcludesPaymentSideAndBadCodes(t *testing.T) {
	details := []models.IQBDetail{
		{EmployeeCode: "E100", CostAccountCode: "421-5000", TransactionType: "Hours By Rate", Amount: dec("800")},
		{EmployeeCode: "E100", CostAccountCode: "421-5000", TransactionType: "Super", Amount: dec("92")},
		{EmployeeCode: "E100", CostAccountCode: "421-5000", TransactionType: "Tax", Amount: dec("250")},
		{EmployeeCode: "E100", CostAccountCode: "421-5000", TransactionType: "Net Pay", Amount: dec("550")},
		{EmployeeCode: "E100", CostAccountCode: "4215000", TransactionType: "Hours By Rate", Amount: dec("100")},
	}

	lines := iqbCostLines(details)
	require.Len(t, lines, 2)
	assert.Equal(t, models.GLAccountSalaries, lines[0].glAccount)
	assert.Equal(t, models.GLAccountSuperannuation, lines[1].glAccount)
}

func TestTandaCostLines_UnmappedEmployeeExcludedWholly(t *testing.T) {
	resolver := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
		{LocationName: "Perth CBD", TeamName: "Ops", CostAccountCode: "421-6000"},
	})

	shifts := []models.TandaShift{
		{EmployeeCode: "E100", LocationName: "Perth CBD", TeamName: "Sales", ShiftCost: dec("300"), IsLeave: utils.NewFalse()},
		{EmployeeCode: "E100", LocationName: "Perth CBD", TeamName: "Ops", ShiftCost: dec("200"), IsLeave: utils.NewTrue(), LeaveType: "Annual Leave"},
		// One unmapped label poisons all of E200's shifts.
		{EmployeeCode: "E200", LocationName: "Perth CBD", TeamName: "Sales", ShiftCost: dec("400"), IsLeave: utils.NewFalse()},
		{EmployeeCode: "E200", LocationName: "Fremantle", TeamName: "Front of House", ShiftCost: dec("150"), IsLeave: utils.NewFalse()},
		{EmployeeCode: "E300", LocationName: "Fremantle", TeamName: "Front of House", ShiftCost: dec("500"), IsLeave: utils.NewFalse()},
	}

	lines, unmapped := tandaCostLines(shifts, resolver)
	require.Len(t, lines, 2)
	assert.Equal(t, "E100", lines[0].employeeCode)
	assert.Equal(t, models.GLAccountSalaries, lines[0].glAccount)
	assert.Equal(t, models.GLAccountAnnualLeave, lines[1].glAccount)
	assert.Equal(t, "421-6000", lines[1].costAccountCode.String())

	assert.Equal(t, []string{"E200", "E300"}, unmapped)
}

func TestTandaCostLines_NewMappingUnlocksEmployee(t *testing.T) {
	shifts := []models.TandaShift{
		{EmployeeCode: "E100", LocationName: "Perth CBD", TeamName: "Sales", ShiftCost: dec("300"), IsLeave: utils.NewFalse()},
		{EmployeeCode: "E500", EmployeeName: "Riley Tan", LocationName: "Compliance & Risk", TeamName: "Financial Crime Manager", ShiftCost: dec("2200"), IsLeave: utils.NewFalse()},
	}
	before := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
	})

	lines, unmapped := tandaCostLines(shifts, before)
	require.Len(t, lines, 1)
	require.Equal(t, []string{"E500"}, unmapped)

	// The operator maps the missing label; the same shifts now allocate in
	// full with no unmapped remainder.
	after := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
		{LocationName: "Compliance & Risk", TeamName: "Financial Crime Manager", CostAccountCode: "910-9100"},
	})

	lines, unmapped = tandaCostLines(shifts, after)
	require.Len(t, lines, 2)
	assert.Empty(t, unmapped)

	rules := buildRules("2025-11-30", models.AllocationSourceTanda, lines, dec("0.05"), "run-1")
	var e500Rules []models.CostAllocationRule
	for _, r := range rules {
		if r.EmployeeCode == "E500" {
			e500Rules = append(e500Rules, r)
		}
	}
	// All of E500's cost lands on the new mapping as one whole-allocation
	// rule.
	require.Len(t, e500Rules, 1)
	assert.Equal(t, "910-9100", e500Rules[0].CostAccountCode)
	assert.True(t, e500Rules[0].Percentage.Equal(dec("100.00")))
	assert.True(t, e500Rules[0].Amount.Equal(dec("2200")))
	assert.True(t, utils.DereferencePtr(e500Rules[0].IsValid))
}

func TestOverrideCostLines_ExpandsAcrossGLBreakdown(t *testing.T) {
	details := []models.IQBDetail{
		{EmployeeCode: "E100", FullName: "Avery Chen", CostAccountCode: "421-5000", TransactionType: "Hours By Rate", Amount: dec("800")},
		{EmployeeCode: "E100", FullName: "Avery Chen", CostAccountCode: "421-5000", TransactionType: "Super", Amount: dec("200")},
		{EmployeeCode: "E100", FullName: "Avery Chen", CostAccountCode: "421-5000", TransactionType: "Tax", Amount: dec("300")},
	}
	allocations := []OverrideAllocation{
		{CostAccountCode: mustCode(t, "421-5000"), Percentage: dec("60")},
		{CostAccountCode: mustCode(t, "422-5000"), Percentage: dec("40")},
	}

	lines := overrideCostLines("E100", details, allocations)
	require.Len(t, lines, 4)
	assert.True(t, lines[0].amount.Equal(dec("480")))  // 60% of 800 salaries
	assert.True(t, lines[1].amount.Equal(dec("120")))  // 60% of 200 super
	assert.True(t, lines[2].amount.Equal(dec("320")))
	assert.True(t, lines[3].amount.Equal(dec("80")))

	rules := buildRules("2025-11-30", models.AllocationSourceOverride, lines, dec("0.05"), "run-1")
	require.Len(t, rules, 4)
	pctSum := decimal.Zero
	for _, r := range rules {
		pctSum = pctSum.Add(r.Percentage)
		assert.True(t, utils.DereferencePtr(r.IsValid))
	}
	assert.True(t, pctSum.Equal(dec("100")))
}

func TestOverrideCostLines_NoPayrollCost(t *testing.T) {
	details := []models.IQBDetail{
		{EmployeeCode: "E100", CostAccountCode: "421-5000", TransactionType: "Tax", Amount: dec("300")},
	}
	allocations := []OverrideAllocation{
		{CostAccountCode: mustCode(t, "421-5000"), Percentage: dec("100")},
	}

	assert.Nil(t, overrideCostLines("E100", details, allocations))

	// The percentage-only fallback keeps the stated split on zero amounts.
	rules := percentageOnlyOverrideRules("2025-11-30", "E100", allocations, "run-1")
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Amount.IsZero())
	assert.True(t, rules[0].Percentage.Equal(dec("100")))
	assert.True(t, utils.DereferencePtr(rules[0].IsValid))
}
