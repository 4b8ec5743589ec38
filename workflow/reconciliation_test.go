package workflow

import (
	"testing"

	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmployeeTotals(t *testing.T) {
	resolver := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
	})
	shifts := []models.TandaShift{
		{EmployeeCode: "E200", EmployeeName: "Morgan Reid", LocationName: "Perth CBD", TeamName: "Sales", ShiftHours: dec("38"), ShiftCost: dec("1200")},
		{EmployeeCode: "E200", EmployeeName: "Morgan Reid", LocationName: "Fremantle", TeamName: "Kitchen", ShiftHours: dec("4"), ShiftCost: dec("130")},
		{EmployeeCode: "E100", EmployeeName: "Avery Chen", LocationName: "Perth CBD", TeamName: "Sales", ShiftHours: dec("40"), ShiftCost: dec("1500")},
	}
	details := []models.IQBDetail{
		{EmployeeCode: "E100", FullName: "Avery Chen", TransactionType: "Hours By Rate", Hours: dec("40"), Amount: dec("1500")},
		{EmployeeCode: "E100", FullName: "Avery Chen", TransactionType: "Tax", Amount: dec("450")},
		{EmployeeCode: "E300", FullName: "Sam Okafor", TransactionType: "Auto Pay", Hours: dec("38"), Amount: dec("2100")},
	}

	totals := buildEmployeeTotals(shifts, details, resolver)
	require.Len(t, totals, 3)

	// Sorted by employee code regardless of arrival order.
	assert.Equal(t, "E100", totals[0].employeeCode)
	assert.True(t, totals[0].inTanda)
	assert.True(t, totals[0].inIQB)
	assert.False(t, totals[0].unmapped)
	// Tax is payment-side and never counts toward payroll cost.
	assert.True(t, totals[0].iqbCost.Equal(dec("1500")))

	assert.Equal(t, "E200", totals[1].employeeCode)
	assert.True(t, totals[1].inTanda)
	assert.False(t, totals[1].inIQB)
	assert.True(t, totals[1].unmapped)
	assert.True(t, totals[1].tandaCost.Equal(dec("1330")))

	assert.Equal(t, "E300", totals[2].employeeCode)
	assert.False(t, totals[2].inTanda)
	assert.True(t, totals[2].inIQB)
}

func TestCompareEmployees_RaisesAllApplicableExceptions(t *testing.T) {
	totals := []employeeTotals{
		// Balanced within the reporting floor: no exception.
		{employeeCode: "E100", inTanda: true, inIQB: true, tandaCost: dec("1500"), iqbCost: dec("1495")},
		// Present in Tanda only, with an unmapped label on top.
		{employeeCode: "E200", inTanda: true, tandaCost: dec("1330"), unmapped: true},
		// Present in IQB only.
		{employeeCode: "E300", inIQB: true, iqbCost: dec("2100")},
		// Variance above both floors.
		{employeeCode: "E400", inTanda: true, inIQB: true, tandaCost: dec("1000"), iqbCost: dec("980")},
	}

	exceptions := compareEmployees("2025-11-30", totals)
	require.Len(t, exceptions, 4)

	assert.Equal(t, "E200", exceptions[0].EmployeeCode)
	assert.Equal(t, models.ExceptionReasonMissingInSource, exceptions[0].Reason)
	assert.Equal(t, "E200", exceptions[1].EmployeeCode)
	assert.Equal(t, models.ExceptionReasonUnmappedLocation, exceptions[1].Reason)

	assert.Equal(t, "E300", exceptions[2].EmployeeCode)
	assert.Equal(t, models.ExceptionReasonMissingInSource, exceptions[2].Reason)

	assert.Equal(t, "E400", exceptions[3].EmployeeCode)
	assert.Equal(t, models.ExceptionReasonAmountMismatch, exceptions[3].Reason)
	assert.True(t, exceptions[3].Variance.Equal(dec("20")))
}

func TestIsReportableMismatch_RequiresBothFloors(t *testing.T) {
	// Below the dollar floor, whatever the percentage.
	assert.False(t, isReportableMismatch(dec("5"), dec("50")))
	// Above the dollar floor but under 1% of the expected amount.
	assert.False(t, isReportableMismatch(dec("40"), dec("5000")))
	// Above both floors.
	assert.True(t, isReportableMismatch(dec("20"), dec("1000")))
	// Boundary values are not reportable; the comparison is strict.
	assert.False(t, isReportableMismatch(dec("10"), dec("100")))
	assert.False(t, isReportableMismatch(dec("50"), dec("5000")))
	// Zero expected with a real variance is always worth a look.
	assert.True(t, isReportableMismatch(dec("11"), decimal.Zero))
}

func TestApplySplitAllocations_RedistributesPooledAccounts(t *testing.T) {
	totals := map[string]decimal.Decimal{
		"SPL-CHEF": dec("10000"),
		"421-5000": dec("3000"),
	}
	splits := map[string][]models.CostCenterSplit{
		"SPL-CHEF": {
			{SourceAccount: "SPL-CHEF", TargetAccount: "421-5000", Percentage: dec("0.6")},
			{SourceAccount: "SPL-CHEF", TargetAccount: "458-5000", Percentage: dec("0.4")},
		},
	}

	result := applySplitAllocations(totals, splits)
	require.Len(t, result, 2)
	// Direct cost plus the redistributed share.
	assert.True(t, result["421-5000"].Equal(dec("9000")))
	assert.True(t, result["458-5000"].Equal(dec("4000")))
}

func TestApplySplitAllocations_PooledAccountWithoutSplitPassesThrough(t *testing.T) {
	totals := map[string]decimal.Decimal{"SPL-MGR": dec("5000")}

	result := applySplitAllocations(totals, map[string][]models.CostCenterSplit{})
	require.Len(t, result, 1)
	assert.True(t, result["SPL-MGR"].Equal(dec("5000")))
}

func TestCompareCostCenters(t *testing.T) {
	iqb := map[string]decimal.Decimal{
		// Matches the journal exactly.
		"421-5000": dec("12000"),
		// Disagrees above both reporting floors.
		"458-5000": dec("8000"),
		// Within the floors: $9 out on $5000.
		"470-5000": dec("5000"),
		// Never posted to the journal at all.
		"910-9100": dec("2500"),
	}
	journal := map[string]decimal.Decimal{
		"421-5000": dec("12000"),
		"458-5000": dec("7500"),
		"470-5000": dec("4991"),
	}

	exceptions := compareCostCenters("2025-11-30", iqb, journal)
	require.Len(t, exceptions, 2)

	// Sorted by cost account.
	assert.Equal(t, "458-5000", exceptions[0].CostCenter)
	assert.Equal(t, models.ExceptionReasonCostCenterVariance, exceptions[0].Reason)
	assert.True(t, exceptions[0].Variance.Equal(dec("500")))

	assert.Equal(t, "910-9100", exceptions[1].CostCenter)
	assert.Equal(t, models.ExceptionReasonCostCenterVariance, exceptions[1].Reason)
	assert.Contains(t, exceptions[1].Detail, "no journal salaries posting")
	assert.True(t, exceptions[1].Variance.Equal(dec("2500")))
}

func TestCompletenessException(t *testing.T) {
	complete := &models.PayPeriod{
		HasTanda: utils.NewTrue(), HasIQB: utils.NewTrue(), HasJournal: utils.NewTrue(),
	}
	assert.Nil(t, completenessException("2025-11-30", complete))

	partial := &models.PayPeriod{
		HasTanda: utils.NewFalse(), HasIQB: utils.NewTrue(), HasJournal: utils.NewFalse(),
	}
	exc := completenessException("2025-11-30", partial)
	require.NotNil(t, exc)
	assert.Equal(t, models.ExceptionReasonIncompleteSources, exc.Reason)
	assert.Contains(t, exc.Detail, "Tanda timesheet")
	assert.Contains(t, exc.Detail, "GL journal")
	assert.NotContains(t, exc.Detail, "IQB payroll")
}

func TestJournalDescriptionRecons(t *testing.T) {
	lines := []models.JournalLine{
		{Description: "Salaries & Wages", LedgerAccount: "6345", Debit: dec("41200.50")},
		{Description: "Salaries & Wages", LedgerAccount: "6345", Credit: dec("200.50")},
		{Description: "PAYG Clearing", LedgerAccount: "2000", Credit: dec("9000")},
		{Description: "Super Contributions", LedgerAccount: "6370", Debit: dec("3900")},
		{Description: ""},
	}
	mappings := map[string]models.JournalDescriptionMapping{
		"Salaries & Wages":    {Description: "Salaries & Wages", GLAccount: "6345", IncludeInTotalCost: utils.NewTrue()},
		"Super Contributions": {Description: "Super Contributions", GLAccount: "6370", IncludeInTotalCost: utils.NewTrue()},
		"PAYG Clearing":       {Description: "PAYG Clearing", GLAccount: "2000", IncludeInTotalCost: utils.NewFalse()},
	}

	recons := journalDescriptionRecons("2025-11-30", lines, mappings)
	require.Len(t, recons, 3)

	// Ordered by description; both rows for the repeated description net out.
	assert.Equal(t, "PAYG Clearing", recons[0].Description)
	assert.True(t, recons[0].JournalNet.Equal(dec("-9000")))
	assert.False(t, utils.DereferencePtr(recons[0].IncludeInTotalCost))

	assert.Equal(t, "Salaries & Wages", recons[1].Description)
	assert.True(t, utils.DereferencePtr(recons[1].IsMapped))
	assert.True(t, recons[1].JournalDebit.Equal(dec("41200.50")))
	assert.True(t, recons[1].JournalNet.Equal(dec("41000.00")))

	assert.Equal(t, "Super Contributions", recons[2].Description)

	// Total labour cost counts only the descriptions mapped into it.
	assert.True(t, mappedCostTotal(recons).Equal(dec("44900.00")))
}

func TestJournalDescriptionRecons_UnmappedDescriptionSurvives(t *testing.T) {
	lines := []models.JournalLine{
		{Description: "Mystery Accrual", LedgerAccount: "6345", Debit: dec("750")},
	}

	recons := journalDescriptionRecons("2025-11-30", lines, map[string]models.JournalDescriptionMapping{})
	require.Len(t, recons, 1)
	assert.False(t, utils.DereferencePtr(recons[0].IsMapped))
	assert.Empty(t, recons[0].GLAccount)
	assert.True(t, mappedCostTotal(recons).IsZero())
}

func TestIQBCostCenterTotals_CostTransactionTypesOnly(t *testing.T) {
	details := []models.IQBDetail{
		{CostAccountCode: "421-5000", TransactionType: "Hours By Rate", Amount: dec("1500")},
		{CostAccountCode: "421-5000", TransactionType: "Auto Pay", Amount: dec("500")},
		{CostAccountCode: "421-5000", TransactionType: "Tax", Amount: dec("450")},
		{CostAccountCode: " 458-5000 ", TransactionType: "Hours By Rate", Amount: dec("900")},
		{CostAccountCode: "", TransactionType: "Hours By Rate", Amount: dec("100")},
	}

	totals := iqbCostCenterTotals(details)
	require.Len(t, totals, 2)
	assert.True(t, totals["421-5000"].Equal(dec("2000")))
	assert.True(t, totals["458-5000"].Equal(dec("900")))
}

func TestJournalCostCenterTotals_SalariesDebitsOnly(t *testing.T) {
	lines := []models.JournalLine{
		{LedgerAccount: "6345", CostAccount: "421-5000", Debit: dec("12000")},
		{LedgerAccount: "-6345", CostAccount: "421-5000", Debit: dec("300")},
		// Super posts at the ledger level, not per cost center.
		{LedgerAccount: "6370", CostAccount: "421-5000", Debit: dec("1140")},
		{LedgerAccount: "6345", CostAccount: "", Debit: dec("50")},
	}

	totals := journalCostCenterTotals(lines)
	require.Len(t, totals, 1)
	assert.True(t, totals["421-5000"].Equal(dec("12300")))
}

func TestJournalLabourTotal(t *testing.T) {
	lines := []models.JournalLine{
		{LedgerAccount: "6345", Debit: dec("41200.50")},
		{LedgerAccount: "-6370", Debit: dec("3900.00")},
		{LedgerAccount: "6300", Debit: dec("1500.00"), Credit: dec("200.00")},
		// Clearing accounts are not labour GL accounts.
		{LedgerAccount: "2000", Credit: dec("46400.50")},
		{LedgerAccount: " 6310 ", Debit: dec("600.00")},
	}

	total := journalLabourTotal(lines)
	assert.True(t, total.Equal(dec("47000.50")))
}

func TestJournalLabourTotal_BalancedOnlyAtExactZeroVariance(t *testing.T) {
	journal := []models.JournalLine{{LedgerAccount: "6345", Debit: dec("1500.00")}}
	reconciled := dec("1500.00")
	assert.True(t, journalLabourTotal(journal).Sub(reconciled).IsZero())

	// A cent out is a cent out.
	offByOneCent := dec("1499.99")
	assert.False(t, journalLabourTotal(journal).Sub(offByOneCent).IsZero())
}
