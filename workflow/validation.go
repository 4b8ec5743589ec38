package workflow

import (
	"fmt"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Exemplar caps keep violation payloads operator-sized.
const (
	exemplarCap    = 10
	missingCodeCap = 20
)

// ValidateUpload runs the referential checks relevant to an upload's record
// kind and persists one ValidationResult keyed by the upload, replacing any
// prior result. Checks are independent and non-short-circuiting: all of them
// run and every defect surfaces at once.
//
// IQB uploads run all five checks; Tanda uploads run only the employee-code
// check; Journal uploads pass by default, since journal lines are
// pre-aggregated and carry no per-employee cost-account detail.
func ValidateUpload(tx *gorm.DB, logger *logrus.Logger, upload *models.Upload) (*models.ValidationResult, error) {
	var checks []models.ValidationCheck

	switch upload.SourceSystem {
	case models.SourceSystemIQB:
		var err error
		checks, err = runIQBChecks(tx, upload)
		if err != nil {
			config.LogError(logger, "validation.go", "ValidateUpload", "runIQBChecks", upload.ID, err)
			return nil, err
		}
	case models.SourceSystemTanda:
		employees, err := distinctColumn(tx, &models.TandaShift{}, "employee_code", upload.ID)
		if err != nil {
			return nil, err
		}
		roster, err := models.EmployeeCodeSet(tx)
		if err != nil {
			return nil, err
		}
		checks = append(checks, checkCodesExist(
			"Employee Code Validation",
			"Check if employee codes match the employee roster",
			employees, roster,
		))
	case models.SourceSystemJournal:
		// No per-row checks for journals.
	}

	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
		}
	}
	return models.SaveValidationResult(tx, upload.ID, passed, checks)
}

func runIQBChecks(tx *gorm.DB, upload *models.Upload) ([]models.ValidationCheck, error) {
	costAccounts, err := distinctColumn(tx, &models.IQBDetail{}, "cost_account_code", upload.ID)
	if err != nil {
		return nil, err
	}
	payCompCodes, err := distinctColumn(tx, &models.IQBDetail{}, "pay_comp_code", upload.ID)
	if err != nil {
		return nil, err
	}
	employees, err := distinctColumn(tx, &models.IQBDetail{}, "employee_code", upload.ID)
	if err != nil {
		return nil, err
	}

	locations, err := models.LocationCodeSet(tx)
	if err != nil {
		return nil, err
	}
	departments, err := models.DepartmentCodeSet(tx)
	if err != nil {
		return nil, err
	}
	resolver, err := models.NewMappingResolver(tx)
	if err != nil {
		return nil, err
	}
	payComps, err := models.PayCompCodeSet(tx)
	if err != nil {
		return nil, err
	}
	roster, err := models.EmployeeCodeSet(tx)
	if err != nil {
		return nil, err
	}

	return []models.ValidationCheck{
		checkCostAccountSegment(
			"Cost Account Code - Location Validation",
			"Check if location codes (first 3 digits) exist in the location reference set",
			costAccounts, locations,
			func(c models.CostAccountCode) string { return c.LocationCode() },
		),
		checkCostAccountSegment(
			"Cost Account Code - Department Validation",
			"Check if department codes (first 2 digits after dash) exist in the department reference set",
			costAccounts, departments,
			func(c models.CostAccountCode) string { return c.DepartmentCode() },
		),
		checkCodesExist(
			"Cost Account Code - Mapping Validation",
			"Check if cost account codes exist in the location mapping table",
			costAccounts, resolver.MappedCostAccountSet(),
		),
		checkCodesExist(
			"Pay Comp/Add Ded Code Validation",
			"Check if pay_comp_code values exist in the pay-component reference set",
			payCompCodes, payComps,
		),
		checkCodesExist(
			"Employee Code Validation",
			"Check if employee codes match the employee roster",
			employees, roster,
		),
	}, nil
}

func distinctColumn(tx *gorm.DB, model interface{}, column string, uploadId int) ([]string, error) {
	var values []string
	err := tx.Model(model).Distinct(column).
		Where("upload_id = ?", uploadId).Pluck(column, &values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

// checkCostAccountSegment groups offending cost accounts under the unknown
// segment value. Codes that fail structural parsing have no trustworthy
// segments to read, so they land in their own "malformed" bucket instead of
// polluting the segment groups.
func checkCostAccountSegment(name, description string, costAccounts []string, valid map[string]bool, segment func(models.CostAccountCode) string) models.ValidationCheck {
	check := models.ValidationCheck{Name: name, Description: description, Passed: true}

	grouped := map[string][]string{}
	var order []string
	var malformed []string
	for _, raw := range costAccounts {
		if raw == "" {
			continue
		}
		code, err := models.ParseCostAccountCode(raw)
		if err != nil {
			malformed = append(malformed, raw)
			continue
		}
		seg := segment(code)
		if valid[seg] {
			continue
		}
		if _, ok := grouped[seg]; !ok {
			order = append(order, seg)
		}
		grouped[seg] = append(grouped[seg], raw)
	}

	for _, seg := range order {
		accounts := grouped[seg]
		check.Passed = false
		check.Violations = append(check.Violations, models.ValidationViolation{
			Value:      seg,
			Exemplars:  capStrings(accounts, exemplarCap),
			TotalCount: len(accounts),
		})
	}
	if len(malformed) > 0 {
		check.Passed = false
		check.Violations = append(check.Violations, models.ValidationViolation{
			Value:      "malformed cost account code",
			Exemplars:  capStrings(malformed, exemplarCap),
			TotalCount: len(malformed),
		})
	}
	return check
}

func checkCodesExist(name, description string, codes []string, valid map[string]bool) models.ValidationCheck {
	check := models.ValidationCheck{Name: name, Description: description, Passed: true}

	var missing []string
	for _, code := range codes {
		if code == "" {
			continue
		}
		if !valid[code] {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		check.Passed = false
		check.Violations = append(check.Violations, models.ValidationViolation{
			Value:      fmt.Sprintf("%d code(s) not found", len(missing)),
			Exemplars:  capStrings(missing, missingCodeCap),
			TotalCount: len(missing),
		})
	}
	return check
}

func capStrings(values []string, limit int) []string {
	if len(values) <= limit {
		return values
	}
	return values[:limit]
}
