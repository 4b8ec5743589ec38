package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Amount-mismatch reporting thresholds, shared by the per-employee and
// per-cost-center compares: a variance is advisory noise below $10 or 1% of
// the expected amount. Period-level balance has NO tolerance; only exact zero
// variance counts as balanced.
var (
	mismatchDollarFloor = decimal.NewFromInt(10)
	mismatchPctFloor    = decimal.NewFromInt(1)
)

type ReconcileResult struct {
	Run        *models.ReconciliationRun        `json:"run"`
	Journals   []models.JournalReconciliation   `json:"journals"`
	Exceptions []models.ReconciliationException `json:"exceptions"`
}

// employeeTotals is the cross-source per-employee view the comparison works
// over, assembled from whichever uploads are present.
type employeeTotals struct {
	employeeCode string
	employeeName string
	tandaHours   decimal.Decimal
	tandaCost    decimal.Decimal
	iqbHours     decimal.Decimal
	iqbCost      decimal.Decimal
	inTanda      bool
	inIQB        bool
	unmapped     bool
}

// Reconcile runs the cross-source compare for a pay period: per-employee
// totals across the timesheet and payroll sources, per-cost-center totals
// between payroll and the ledger journal, the journal's per-description
// breakdown, and the ledger grand total as ground truth for the period-level
// variance. Re-running with the same upload set yields the same run
// artifacts; prior artifacts for the period are replaced wholesale.
func Reconcile(db *gorm.DB, logger *logrus.Logger, payPeriodId string) (*ReconcileResult, error) {
	period, err := models.GetPayPeriod(payPeriodId)
	if err != nil {
		return nil, err
	}

	var result *ReconcileResult
	var mappingCount int
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquirePayPeriodLock(tx, payPeriodId); err != nil {
			return err
		}
		defer ReleasePayPeriodLock(tx, payPeriodId)

		shifts, err := activeRecords[models.TandaShift](tx, payPeriodId, models.SourceSystemTanda)
		if err != nil {
			return err
		}
		details, err := activeRecords[models.IQBDetail](tx, payPeriodId, models.SourceSystemIQB)
		if err != nil {
			return err
		}
		journalLines, err := activeRecords[models.JournalLine](tx, payPeriodId, models.SourceSystemJournal)
		if err != nil {
			return err
		}
		resolver, err := models.NewMappingResolver(tx)
		if err != nil {
			return err
		}
		mappingCount = resolver.Len()
		splits, err := models.ActiveCostCenterSplits(tx)
		if err != nil {
			return err
		}
		descMappings, err := models.ActiveJournalDescriptionMappings(tx)
		if err != nil {
			return err
		}

		totals := buildEmployeeTotals(shifts, details, resolver)
		exceptions := compareEmployees(payPeriodId, totals)

		iqbCenters := applySplitAllocations(iqbCostCenterTotals(details), splits)
		journalCenters := journalCostCenterTotals(journalLines)
		exceptions = append(exceptions, compareCostCenters(payPeriodId, iqbCenters, journalCenters)...)

		if exc := completenessException(payPeriodId, period); exc != nil {
			exceptions = append(exceptions, *exc)
		}

		journals := journalDescriptionRecons(payPeriodId, journalLines, descMappings)

		journalTotal := journalLabourTotal(journalLines)
		reconciledTotal := decimal.Zero
		for _, t := range totals {
			reconciledTotal = reconciledTotal.Add(t.iqbCost)
		}
		variance := journalTotal.Sub(reconciledTotal).Abs()
		balanced := variance.IsZero()

		now := time.Now()
		run := &models.ReconciliationRun{
			PayPeriodId:     payPeriodId,
			Status:          models.ReconciliationRunStatusCompleted,
			JournalTotal:    journalTotal.Round(2),
			ReconciledTotal: reconciledTotal.Round(2),
			Variance:        variance.Round(2),
			IsBalanced:      &balanced,
			ExceptionCount:  len(exceptions),
			CorrelationId:   uuid.NewString(),
			CompletedAt:     &now,
		}

		employees := make([]models.EmployeeReconciliation, 0, len(totals))
		for _, t := range totals {
			inTanda := t.inTanda
			inIQB := t.inIQB
			employees = append(employees, models.EmployeeReconciliation{
				PayPeriodId:  payPeriodId,
				EmployeeCode: t.employeeCode,
				EmployeeName: t.employeeName,
				TandaHours:   t.tandaHours.Round(2),
				TandaCost:    t.tandaCost.Round(2),
				IQBHours:     t.iqbHours.Round(2),
				IQBCost:      t.iqbCost.Round(2),
				CostVariance: t.tandaCost.Sub(t.iqbCost).Abs().Round(2),
				InTanda:      &inTanda,
				InIQB:        &inIQB,
			})
		}

		if err := models.ReplaceReconciliation(tx, run, employees, journals, exceptions); err != nil {
			config.LogError(logger, "reconciliation.go", "Reconcile", "ReplaceReconciliation", payPeriodId, err)
			return err
		}
		if err := period.MarkReconciled(tx); err != nil {
			return err
		}

		result = &ReconcileResult{Run: run, Journals: journals, Exceptions: exceptions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	unmappedDescs := 0
	for _, j := range result.Journals {
		if !utils.DereferencePtr(j.IsMapped) {
			unmappedDescs++
		}
	}
	logger.WithFields(logrus.Fields{
		"pay_period":            payPeriodId,
		"variance":              result.Run.Variance.String(),
		"is_balanced":           utils.DereferencePtr(result.Run.IsBalanced),
		"exceptions":            len(result.Exceptions),
		"mapped_cost_total":     mappedCostTotal(result.Journals).Round(2).String(),
		"unmapped_descriptions": unmappedDescs,
		"location_mappings":     mappingCount,
	}).Info("reconciliation complete")

	return result, nil
}

// activeRecords loads the record rows of the active upload for one source;
// no upload means no rows, which is fine at this level (completeness is an
// exception, not an error).
func activeRecords[T any](tx *gorm.DB, payPeriodId string, source models.SourceSystem) ([]T, error) {
	upload, err := models.ActiveUpload(tx, payPeriodId, source)
	if err != nil || upload == nil {
		return nil, err
	}
	var rows []T
	if err := tx.Where("upload_id = ?", upload.ID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func buildEmployeeTotals(shifts []models.TandaShift, details []models.IQBDetail, resolver *models.MappingResolver) []employeeTotals {
	byEmployee := map[string]*employeeTotals{}
	var order []string

	get := func(code, name string) *employeeTotals {
		t := byEmployee[code]
		if t == nil {
			t = &employeeTotals{employeeCode: code, employeeName: name}
			byEmployee[code] = t
			order = append(order, code)
		}
		if t.employeeName == "" {
			t.employeeName = name
		}
		return t
	}

	for _, s := range shifts {
		t := get(s.EmployeeCode, s.EmployeeName)
		t.inTanda = true
		t.tandaHours = t.tandaHours.Add(s.ShiftHours)
		t.tandaCost = t.tandaCost.Add(s.ShiftCost)
		if _, ok := resolver.Resolve(s.LocationName, s.TeamName); !ok {
			t.unmapped = true
		}
	}
	for _, d := range details {
		if !models.IsCostTransactionType(d.TransactionType) {
			continue
		}
		t := get(d.EmployeeCode, d.FullName)
		t.inIQB = true
		t.iqbHours = t.iqbHours.Add(d.Hours)
		t.iqbCost = t.iqbCost.Add(d.Amount)
	}

	sort.Strings(order)
	totals := make([]employeeTotals, 0, len(order))
	for _, code := range order {
		totals = append(totals, *byEmployee[code])
	}
	return totals
}

// compareEmployees raises the per-employee exceptions: presence in one
// source but not the other, unmapped timesheet labels, and amount mismatches
// above the reporting floor. All findings are collected; nothing fails fast.
func compareEmployees(payPeriodId string, totals []employeeTotals) []models.ReconciliationException {
	var exceptions []models.ReconciliationException
	for _, t := range totals {
		if t.inTanda && !t.inIQB {
			exceptions = append(exceptions, models.ReconciliationException{
				PayPeriodId:  payPeriodId,
				EmployeeCode: t.employeeCode,
				EmployeeName: t.employeeName,
				Reason:       models.ExceptionReasonMissingInSource,
				Detail:       "present in Tanda but missing from IQB",
				Variance:     t.tandaCost.Round(2),
			})
		}
		if t.inIQB && !t.inTanda {
			exceptions = append(exceptions, models.ReconciliationException{
				PayPeriodId:  payPeriodId,
				EmployeeCode: t.employeeCode,
				EmployeeName: t.employeeName,
				Reason:       models.ExceptionReasonMissingInSource,
				Detail:       "present in IQB but missing from Tanda",
				Variance:     t.iqbCost.Round(2),
			})
		}
		if t.unmapped {
			exceptions = append(exceptions, models.ReconciliationException{
				PayPeriodId:  payPeriodId,
				EmployeeCode: t.employeeCode,
				EmployeeName: t.employeeName,
				Reason:       models.ExceptionReasonUnmappedLocation,
				Detail:       "timesheet location/team has no cost-account mapping",
				Variance:     t.tandaCost.Round(2),
			})
		}
		if t.inTanda && t.inIQB {
			variance := t.tandaCost.Sub(t.iqbCost).Abs()
			if isReportableMismatch(variance, t.tandaCost) {
				exceptions = append(exceptions, models.ReconciliationException{
					PayPeriodId:  payPeriodId,
					EmployeeCode: t.employeeCode,
					EmployeeName: t.employeeName,
					Reason:       models.ExceptionReasonAmountMismatch,
					Detail:       "timesheet cost and payroll cost disagree",
					Variance:     variance.Round(2),
				})
			}
		}
	}
	return exceptions
}

func isReportableMismatch(variance, expected decimal.Decimal) bool {
	if !variance.GreaterThan(mismatchDollarFloor) {
		return false
	}
	if expected.IsZero() {
		return true
	}
	pct := variance.Div(expected).Mul(hundred)
	return pct.GreaterThan(mismatchPctFloor)
}

// iqbCostCenterTotals sums payroll cost by cost account, skipping the
// payment-side transaction types the same way the employee totals do.
func iqbCostCenterTotals(details []models.IQBDetail) map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, d := range details {
		if !models.IsCostTransactionType(d.TransactionType) {
			continue
		}
		code := strings.TrimSpace(d.CostAccountCode)
		if code == "" {
			continue
		}
		totals[code] = totals[code].Add(d.Amount)
	}
	return totals
}

// journalCostCenterTotals sums journal debits by cost account across lines
// posted to the salaries ledger account, the one account the journal breaks
// down per cost center.
func journalCostCenterTotals(lines []models.JournalLine) map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, line := range lines {
		account := strings.TrimPrefix(strings.TrimSpace(line.LedgerAccount), "-")
		if account != models.GLAccountSalaries {
			continue
		}
		code := strings.TrimSpace(line.CostAccount)
		if code == "" {
			continue
		}
		totals[code] = totals[code].Add(line.Debit)
	}
	return totals
}

// applySplitAllocations redistributes pooled "SPL-" account totals across
// their configured target accounts. A pooled account with no active split
// passes through unchanged so its dollars still show up in the compare.
func applySplitAllocations(totals map[string]decimal.Decimal, splits map[string][]models.CostCenterSplit) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(totals))
	for account, amount := range totals {
		rows := splits[account]
		if !models.IsSplitAccount(account) || len(rows) == 0 {
			result[account] = result[account].Add(amount)
			continue
		}
		for _, row := range rows {
			result[row.TargetAccount] = result[row.TargetAccount].Add(amount.Mul(row.Percentage))
		}
	}
	return result
}

// compareCostCenters checks each payroll cost center against the journal's
// salaries posting for the same account. A center the journal never posted is
// its own finding; posted centers use the shared reporting floor.
func compareCostCenters(payPeriodId string, iqbTotals, journalTotals map[string]decimal.Decimal) []models.ReconciliationException {
	accounts := make([]string, 0, len(iqbTotals))
	for account := range iqbTotals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	var exceptions []models.ReconciliationException
	for _, account := range accounts {
		iqbAmount := iqbTotals[account]
		journalAmount, posted := journalTotals[account]
		if !posted || journalAmount.IsZero() {
			if iqbAmount.IsZero() {
				continue
			}
			exceptions = append(exceptions, models.ReconciliationException{
				PayPeriodId: payPeriodId,
				CostCenter:  account,
				Reason:      models.ExceptionReasonCostCenterVariance,
				Detail:      "payroll cost has no journal salaries posting for this cost account",
				Variance:    iqbAmount.Round(2),
			})
			continue
		}
		variance := iqbAmount.Sub(journalAmount).Abs()
		if isReportableMismatch(variance, iqbAmount) {
			exceptions = append(exceptions, models.ReconciliationException{
				PayPeriodId: payPeriodId,
				CostCenter:  account,
				Reason:      models.ExceptionReasonCostCenterVariance,
				Detail:      "payroll cost and journal salaries posting disagree",
				Variance:    variance.Round(2),
			})
		}
	}
	return exceptions
}

// completenessException flags a run executed before all three source files
// arrived, naming the missing ones. Reconciliation still proceeds over the
// sources that are present.
func completenessException(payPeriodId string, period *models.PayPeriod) *models.ReconciliationException {
	if period.HasAllSources() {
		return nil
	}
	var missing []string
	if !utils.DereferencePtr(period.HasTanda) {
		missing = append(missing, "Tanda timesheet")
	}
	if !utils.DereferencePtr(period.HasIQB) {
		missing = append(missing, "IQB payroll")
	}
	if !utils.DereferencePtr(period.HasJournal) {
		missing = append(missing, "GL journal")
	}
	return &models.ReconciliationException{
		PayPeriodId: payPeriodId,
		Reason:      models.ExceptionReasonIncompleteSources,
		Detail:      fmt.Sprintf("source files not uploaded: %s", strings.Join(missing, ", ")),
	}
}

// journalDescriptionRecons nets the journal per distinct line description and
// classifies each through the description mapping. Output is ordered by
// description so re-runs persist identical rows.
func journalDescriptionRecons(payPeriodId string, lines []models.JournalLine, mappings map[string]models.JournalDescriptionMapping) []models.JournalReconciliation {
	type descTotals struct {
		debit  decimal.Decimal
		credit decimal.Decimal
	}
	byDesc := map[string]*descTotals{}
	var order []string
	for _, line := range lines {
		desc := strings.TrimSpace(line.Description)
		if desc == "" {
			continue
		}
		t := byDesc[desc]
		if t == nil {
			t = &descTotals{}
			byDesc[desc] = t
			order = append(order, desc)
		}
		t.debit = t.debit.Add(line.Debit)
		t.credit = t.credit.Add(line.Credit)
	}
	sort.Strings(order)

	recons := make([]models.JournalReconciliation, 0, len(order))
	for _, desc := range order {
		t := byDesc[desc]
		recon := models.JournalReconciliation{
			PayPeriodId:        payPeriodId,
			Description:        desc,
			IncludeInTotalCost: utils.NewFalse(),
			IsMapped:           utils.NewFalse(),
			JournalDebit:       t.debit.Round(2),
			JournalCredit:      t.credit.Round(2),
			JournalNet:         t.debit.Sub(t.credit).Round(2),
		}
		if mapping, ok := mappings[desc]; ok {
			recon.GLAccount = mapping.GLAccount
			recon.IsMapped = utils.NewTrue()
			if utils.DereferencePtr(mapping.IncludeInTotalCost) {
				recon.IncludeInTotalCost = utils.NewTrue()
			}
		}
		recons = append(recons, recon)
	}
	return recons
}

// mappedCostTotal sums the netted amounts of descriptions whose mapping
// counts them toward total labour cost.
func mappedCostTotal(recons []models.JournalReconciliation) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recons {
		if utils.DereferencePtr(r.IncludeInTotalCost) {
			total = total.Add(r.JournalNet)
		}
	}
	return total
}

// journalLabourTotal sums debit-credit over journal lines posted to labour
// GL accounts. Exports sometimes prefix the ledger account with a dash.
func journalLabourTotal(lines []models.JournalLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		account := strings.TrimPrefix(strings.TrimSpace(line.LedgerAccount), "-")
		if _, ok := models.GLAccountNames[account]; !ok {
			continue
		}
		total = total.Add(line.Debit).Sub(line.Credit)
	}
	return total
}
