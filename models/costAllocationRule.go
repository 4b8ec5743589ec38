package models

import (
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostAllocationRule is one persisted allocation line: this employee's share
// of cost at this cost account and GL account, for one source. Rule sets are
// regenerated wholesale per (period, source); rows are never patched in
// place, so no stale line can survive a re-run.
type CostAllocationRule struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	PayPeriodId     string              `gorm:"index:idx_rule_period_source;size:20;not null" json:"pay_period_id"`
	EmployeeCode    string              `gorm:"index;size:20;not null" json:"employee_code"`
	EmployeeName    string              `gorm:"size:200" json:"employee_name"`
	Source          AllocationSourceTag `gorm:"type:enum('iqb','tanda','override');index:idx_rule_period_source;size:20;not null" json:"source"`
	CostAccountCode string              `gorm:"size:20;not null" json:"cost_account_code"`
	GLAccount       string              `gorm:"size:20" json:"gl_account"`
	Percentage      decimal.Decimal     `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Amount          decimal.Decimal     `gorm:"type:decimal(20,2);default:0" json:"amount"`
	IsValid         *bool               `gorm:"not null;default:false" json:"is_valid"`
	CorrelationId   string              `gorm:"size:40" json:"correlation_id"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// ReplaceAllocationRules deletes the existing rule set for (period, source)
// and inserts the replacement in one shot. Callers must hold the period lock
// so a reader never observes a half-replaced set.
func ReplaceAllocationRules(tx *gorm.DB, payPeriodId string, source AllocationSourceTag, rules []CostAllocationRule) error {
	err := tx.Where("pay_period_id = ? AND source = ?", payPeriodId, source).
		Delete(&CostAllocationRule{}).Error
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	return tx.Create(&rules).Error
}

// ReplaceEmployeeOverrideRules replaces only one employee's override rule
// set, leaving every other employee's rules untouched.
func ReplaceEmployeeOverrideRules(tx *gorm.DB, payPeriodId string, employeeCode string, rules []CostAllocationRule) error {
	err := tx.Where("pay_period_id = ? AND source = ? AND employee_code = ?",
		payPeriodId, AllocationSourceOverride, employeeCode).
		Delete(&CostAllocationRule{}).Error
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	return tx.Create(&rules).Error
}

func GetAllocationRules(payPeriodId string, source AllocationSourceTag) ([]*CostAllocationRule, error) {
	db := config.GetDB()
	var rules []*CostAllocationRule
	err := db.Where("pay_period_id = ? AND source = ?", payPeriodId, source).
		Order("employee_code, cost_account_code, gl_account").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func GetEmployeeAllocationRules(payPeriodId string, employeeCode string) ([]*CostAllocationRule, error) {
	db := config.GetDB()
	var rules []*CostAllocationRule
	err := db.Where("pay_period_id = ? AND employee_code = ?", payPeriodId, employeeCode).
		Order("source, cost_account_code, gl_account").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
