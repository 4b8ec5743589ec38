package workflow

import (
	"errors"
	"fmt"
	"sort"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNoSourceData     = errors.New("no data uploaded for this source")
	ErrValidationFailed = errors.New("upload failed validation")
)

// AllocationResult summarizes one allocation run for one source.
type AllocationResult struct {
	Source        models.AllocationSourceTag `json:"source"`
	RulesCreated  int                        `json:"rules_created"`
	ValidRules    int                        `json:"valid_rules"`
	InvalidRules  int                        `json:"invalid_rules"`
	UnmappedCount int                        `json:"unmapped_count"`
}

type RunAllocationResult struct {
	IQBResult   *AllocationResult `json:"iqb_result"`
	TandaResult *AllocationResult `json:"tanda_result"`
}

// costLine is one dollar amount attributed to an employee at a cost account
// and GL account. Both source extractions and override expansion reduce to
// these before rule generation, so the percentage math has a single home.
type costLine struct {
	employeeCode    string
	employeeName    string
	costAccountCode models.CostAccountCode
	glAccount       string
	amount          decimal.Decimal
}

// buildRules groups lines per employee, converts each (cost account, GL)
// amount to its percentage share of the employee's total rounded to 2
// decimals, and flags the whole rule set valid iff the percentages sum to
// 100 within the tolerance band. Employees with a zero total are skipped.
// Output ordering is deterministic so re-runs produce identical rule sets.
func buildRules(payPeriodId string, source models.AllocationSourceTag, lines []costLine, tolerance decimal.Decimal, correlationId string) []models.CostAllocationRule {
	type ruleKey struct {
		code models.CostAccountCode
		gl   string
	}
	type employeeAgg struct {
		name   string
		totals map[ruleKey]decimal.Decimal
		keys   []ruleKey
		total  decimal.Decimal
	}

	byEmployee := map[string]*employeeAgg{}
	var employeeOrder []string
	for _, line := range lines {
		agg := byEmployee[line.employeeCode]
		if agg == nil {
			agg = &employeeAgg{name: line.employeeName, totals: map[ruleKey]decimal.Decimal{}}
			byEmployee[line.employeeCode] = agg
			employeeOrder = append(employeeOrder, line.employeeCode)
		}
		key := ruleKey{code: line.costAccountCode, gl: line.glAccount}
		if _, ok := agg.totals[key]; !ok {
			agg.keys = append(agg.keys, key)
		}
		agg.totals[key] = agg.totals[key].Add(line.amount)
		agg.total = agg.total.Add(line.amount)
	}
	sort.Strings(employeeOrder)

	var rules []models.CostAllocationRule
	for _, employeeCode := range employeeOrder {
		agg := byEmployee[employeeCode]
		if agg.total.IsZero() {
			continue
		}
		sort.Slice(agg.keys, func(i, j int) bool {
			if agg.keys[i].code != agg.keys[j].code {
				return agg.keys[i].code < agg.keys[j].code
			}
			return agg.keys[i].gl < agg.keys[j].gl
		})

		pctSum := decimal.Zero
		start := len(rules)
		for _, key := range agg.keys {
			amount := agg.totals[key]
			pct := amount.Div(agg.total).Mul(hundred).Round(2)
			pctSum = pctSum.Add(pct)
			rules = append(rules, models.CostAllocationRule{
				PayPeriodId:     payPeriodId,
				EmployeeCode:    employeeCode,
				EmployeeName:    agg.name,
				Source:          source,
				CostAccountCode: key.code.String(),
				GLAccount:       key.gl,
				Percentage:      pct,
				Amount:          amount.Round(2),
				CorrelationId:   correlationId,
			})
		}

		// The band is exclusive: a deviation equal to the tolerance is out.
		valid := pctSum.Sub(hundred).Abs().LessThan(tolerance)
		for i := start; i < len(rules); i++ {
			if valid {
				rules[i].IsValid = utils.NewTrue()
			} else {
				rules[i].IsValid = utils.NewFalse()
			}
		}
	}
	return rules
}

func summarize(source models.AllocationSourceTag, rules []models.CostAllocationRule, unmapped int) *AllocationResult {
	result := &AllocationResult{Source: source, RulesCreated: len(rules), UnmappedCount: unmapped}
	for _, r := range rules {
		if utils.DereferencePtr(r.IsValid) {
			result.ValidRules++
		} else {
			result.InvalidRules++
		}
	}
	return result
}

// iqbCostLines extracts allocation input from the payroll export: one line
// per row, excluding payment-side transaction types (Tax, Net Pay).
func iqbCostLines(details []models.IQBDetail) []costLine {
	var lines []costLine
	for _, d := range details {
		if !models.IsCostTransactionType(d.TransactionType) {
			continue
		}
		code, err := models.ParseCostAccountCode(d.CostAccountCode)
		if err != nil {
			// Structurally bad codes were already surfaced by validation.
			continue
		}
		lines = append(lines, costLine{
			employeeCode:    d.EmployeeCode,
			employeeName:    d.FullName,
			costAccountCode: code,
			glAccount:       models.GLAccountForTransactionType(d.TransactionType),
			amount:          d.Amount,
		})
	}
	return lines
}

// tandaCostLines resolves each shift's (location, team) label. An employee
// with any unmapped label is excluded entirely and counted, never partially
// allocated: a missing mapping is an actionable gap for the operator, not an
// allocation failure.
func tandaCostLines(shifts []models.TandaShift, resolver *models.MappingResolver) (lines []costLine, unmappedEmployees []string) {
	type empShifts struct {
		name   string
		shifts []models.TandaShift
	}
	byEmployee := map[string]*empShifts{}
	var order []string
	for _, s := range shifts {
		agg := byEmployee[s.EmployeeCode]
		if agg == nil {
			agg = &empShifts{name: s.EmployeeName}
			byEmployee[s.EmployeeCode] = agg
			order = append(order, s.EmployeeCode)
		}
		agg.shifts = append(agg.shifts, s)
	}
	sort.Strings(order)

	for _, employeeCode := range order {
		agg := byEmployee[employeeCode]
		unmapped := false
		var empLines []costLine
		for _, s := range agg.shifts {
			code, ok := resolver.Resolve(s.LocationName, s.TeamName)
			if !ok {
				unmapped = true
				continue
			}
			glAccount := models.GLAccountSalaries
			if utils.DereferencePtr(s.IsLeave) {
				glAccount = models.GLAccountForTransactionType(s.LeaveType)
			}
			empLines = append(empLines, costLine{
				employeeCode:    employeeCode,
				employeeName:    agg.name,
				costAccountCode: code,
				glAccount:       glAccount,
				amount:          s.ShiftCost,
			})
		}
		if unmapped {
			unmappedEmployees = append(unmappedEmployees, employeeCode)
			continue
		}
		lines = append(lines, empLines...)
	}
	return lines, unmappedEmployees
}

// requireValidatedUpload fetches the active upload for a source and gates on
// its validation result, validating on the spot when none is recorded yet.
func requireValidatedUpload(tx *gorm.DB, logger *logrus.Logger, payPeriodId string, source models.SourceSystem) (*models.Upload, error) {
	upload, err := models.ActiveUpload(tx, payPeriodId, source)
	if err != nil {
		return nil, err
	}
	if upload == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceData, source)
	}

	var result models.ValidationResult
	err = tx.Where("upload_id = ?", upload.ID).First(&result).Error
	if err == gorm.ErrRecordNotFound {
		fresh, verr := ValidateUpload(tx, logger, upload)
		if verr != nil {
			return nil, verr
		}
		result = *fresh
	} else if err != nil {
		return nil, err
	}

	if !utils.DereferencePtr(result.Passed) {
		return nil, fmt.Errorf("%w: upload %d (%s)", ErrValidationFailed, upload.ID, source)
	}
	return upload, nil
}

// allocateSource regenerates one source's rule set inside the caller's
// transaction. Delete-and-replace semantics: the prior (period, source) set
// is removed wholesale before the new rows are inserted.
func allocateSource(tx *gorm.DB, logger *logrus.Logger, payPeriodId string, source models.AllocationSourceTag, tolerance decimal.Decimal, correlationId string) (*AllocationResult, error) {
	var lines []costLine
	var unmapped []string

	switch source {
	case models.AllocationSourceIQB:
		upload, err := requireValidatedUpload(tx, logger, payPeriodId, models.SourceSystemIQB)
		if err != nil {
			return nil, err
		}
		var details []models.IQBDetail
		if err := tx.Where("upload_id = ?", upload.ID).Find(&details).Error; err != nil {
			return nil, err
		}
		lines = iqbCostLines(details)

	case models.AllocationSourceTanda:
		upload, err := requireValidatedUpload(tx, logger, payPeriodId, models.SourceSystemTanda)
		if err != nil {
			return nil, err
		}
		var shifts []models.TandaShift
		if err := tx.Where("upload_id = ?", upload.ID).Find(&shifts).Error; err != nil {
			return nil, err
		}
		resolver, err := models.NewMappingResolver(tx)
		if err != nil {
			return nil, err
		}
		lines, unmapped = tandaCostLines(shifts, resolver)

	default:
		return nil, fmt.Errorf("unknown allocation source: %s", source)
	}

	rules := buildRules(payPeriodId, source, lines, tolerance, correlationId)
	if err := models.ReplaceAllocationRules(tx, payPeriodId, source, rules); err != nil {
		return nil, err
	}
	return summarize(source, rules, len(unmapped)), nil
}

// RunAllocation regenerates allocation rules for both IQB and Tanda and sets
// the period's allocation-complete flag. The whole run holds the pay-period
// advisory lock and commits atomically; a Tanda file that has not been
// uploaded yet yields an empty Tanda result rather than failing the run.
func RunAllocation(db *gorm.DB, logger *logrus.Logger, payPeriodId string) (*RunAllocationResult, error) {
	period, err := models.GetPayPeriod(payPeriodId)
	if err != nil {
		return nil, err
	}

	tolerance := config.AllocationTolerance()
	correlationId := uuid.NewString()

	var iqbResult, tandaResult *AllocationResult
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquirePayPeriodLock(tx, payPeriodId); err != nil {
			return err
		}
		defer ReleasePayPeriodLock(tx, payPeriodId)

		var aerr error
		iqbResult, aerr = allocateSource(tx, logger, payPeriodId, models.AllocationSourceIQB, tolerance, correlationId)
		if aerr != nil {
			config.LogError(logger, "allocation.go", "RunAllocation", "allocate iqb", payPeriodId, aerr)
			return aerr
		}

		tandaResult, aerr = allocateSource(tx, logger, payPeriodId, models.AllocationSourceTanda, tolerance, correlationId)
		if aerr != nil {
			if !errors.Is(aerr, ErrNoSourceData) {
				config.LogError(logger, "allocation.go", "RunAllocation", "allocate tanda", payPeriodId, aerr)
				return aerr
			}
			tandaResult = &AllocationResult{Source: models.AllocationSourceTanda}
		}

		return period.MarkAllocationComplete(tx)
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"pay_period":     payPeriodId,
		"correlation_id": correlationId,
		"iqb_rules":      iqbResult.RulesCreated,
		"tanda_rules":    tandaResult.RulesCreated,
		"unmapped":       tandaResult.UnmappedCount,
	}).Info("allocation run complete")

	return &RunAllocationResult{IQBResult: iqbResult, TandaResult: tandaResult}, nil
}

// ApplyOverride parses override text for one employee, expands the
// percentages across the employee's GL cost breakdown from the payroll
// export, and replaces only that employee's override rule set. The employee's
// source selection flips to override in the same transaction.
func ApplyOverride(db *gorm.DB, logger *logrus.Logger, payPeriodId, employeeCode, overrideText, updatedBy string) ([]models.CostAllocationRule, error) {
	tolerance := config.AllocationTolerance()
	allocations, err := ParseOverride(overrideText, tolerance)
	if err != nil {
		return nil, err
	}

	var rules []models.CostAllocationRule
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AcquirePayPeriodLock(tx, payPeriodId); err != nil {
			return err
		}
		defer ReleasePayPeriodLock(tx, payPeriodId)

		upload, err := requireValidatedUpload(tx, logger, payPeriodId, models.SourceSystemIQB)
		if err != nil {
			return err
		}
		var details []models.IQBDetail
		err = tx.Where("upload_id = ? AND employee_code = ?", upload.ID, employeeCode).Find(&details).Error
		if err != nil {
			return err
		}

		lines := overrideCostLines(employeeCode, details, allocations)
		correlationId := uuid.NewString()
		rules = buildRules(payPeriodId, models.AllocationSourceOverride, lines, tolerance, correlationId)
		if len(rules) == 0 {
			// No payroll cost to apportion yet; keep the stated percentages
			// against zero amounts so the override survives until IQB arrives.
			rules = percentageOnlyOverrideRules(payPeriodId, employeeCode, allocations, correlationId)
		}

		if err := models.ReplaceEmployeeOverrideRules(tx, payPeriodId, employeeCode, rules); err != nil {
			return err
		}
		_, err = models.SelectAllocationSource(tx, payPeriodId, employeeCode, models.AllocationSourceOverride, updatedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// EmployeeAllocation is the rule set the journal build would use for one
// employee, together with where it came from. Override rules win when the
// employee's source selection says so; otherwise the selected source's rules
// are authoritative.
type EmployeeAllocation struct {
	EmployeeCode string                      `json:"employee_code"`
	EmployeeName string                      `json:"employee_name"`
	Source       models.AllocationSourceTag  `json:"source"`
	Rules        []models.CostAllocationRule `json:"rules"`
}

// EffectiveEmployeeAllocation resolves the employee's selected source and
// returns only that source's rules.
func EffectiveEmployeeAllocation(db *gorm.DB, payPeriodId, employeeCode string) (*EmployeeAllocation, error) {
	source, err := models.AllocationSourceFor(payPeriodId, employeeCode)
	if err != nil {
		return nil, err
	}
	all, err := models.GetEmployeeAllocationRules(payPeriodId, employeeCode)
	if err != nil {
		return nil, err
	}

	result := &EmployeeAllocation{EmployeeCode: employeeCode, Source: source}
	for _, rule := range all {
		if rule.Source != source {
			continue
		}
		if result.EmployeeName == "" {
			result.EmployeeName = rule.EmployeeName
		}
		result.Rules = append(result.Rules, *rule)
	}
	if result.EmployeeName == "" || result.EmployeeName == employeeCode {
		if ref, rerr := models.GetRefEmployee(db, employeeCode); rerr == nil {
			result.EmployeeName = ref.FullName
		}
	}
	if result.EmployeeName == "" {
		result.EmployeeName = employeeCode
	}
	return result, nil
}

func percentageOnlyOverrideRules(payPeriodId, employeeCode string, allocations []OverrideAllocation, correlationId string) []models.CostAllocationRule {
	var rules []models.CostAllocationRule
	for _, alloc := range allocations {
		rules = append(rules, models.CostAllocationRule{
			PayPeriodId:     payPeriodId,
			EmployeeCode:    employeeCode,
			EmployeeName:    employeeCode,
			Source:          models.AllocationSourceOverride,
			CostAccountCode: alloc.CostAccountCode.String(),
			GLAccount:       models.GLAccountSalaries,
			Percentage:      alloc.Percentage,
			Amount:          decimal.Zero,
			IsValid:         utils.NewTrue(),
			CorrelationId:   correlationId,
		})
	}
	return rules
}

// overrideCostLines turns parsed (code, pct) pairs into dollar lines using
// the employee's per-GL totals, so override rules carry real amounts and GL
// tags like source-derived rules do. Returns nil when the employee has no
// payroll cost to apportion.
func overrideCostLines(employeeCode string, details []models.IQBDetail, allocations []OverrideAllocation) []costLine {
	glTotals := map[string]decimal.Decimal{}
	var glOrder []string
	total := decimal.Zero
	employeeName := employeeCode
	for _, d := range details {
		if !models.IsCostTransactionType(d.TransactionType) {
			continue
		}
		if d.FullName != "" {
			employeeName = d.FullName
		}
		gl := models.GLAccountForTransactionType(d.TransactionType)
		if _, ok := glTotals[gl]; !ok {
			glOrder = append(glOrder, gl)
		}
		glTotals[gl] = glTotals[gl].Add(d.Amount)
		total = total.Add(d.Amount)
	}
	sort.Strings(glOrder)

	if total.IsZero() {
		return nil
	}

	var lines []costLine
	for _, alloc := range allocations {
		for _, gl := range glOrder {
			amount := glTotals[gl].Mul(alloc.Percentage).Div(hundred)
			lines = append(lines, costLine{
				employeeCode:    employeeCode,
				employeeName:    employeeName,
				costAccountCode: alloc.CostAccountCode,
				glAccount:       gl,
				amount:          amount,
			})
		}
	}
	return lines
}
