package models

import (
	"errors"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationRun is one execution of the cross-source compare for a pay
// period. The journal grand total is ledger ground truth; a period is
// balanced only at exactly zero variance. Percentage-sum tolerance belongs
// to allocation, not here.
type ReconciliationRun struct {
	ID              int                     `gorm:"primary_key" json:"id"`
	PayPeriodId     string                  `gorm:"index;size:20;not null" json:"pay_period_id"`
	Status          ReconciliationRunStatus `gorm:"type:enum('running','completed','failed');size:20;not null;default:'running'" json:"status"`
	JournalTotal    decimal.Decimal         `gorm:"type:decimal(20,2);default:0" json:"journal_total"`
	ReconciledTotal decimal.Decimal         `gorm:"type:decimal(20,2);default:0" json:"reconciled_total"`
	Variance        decimal.Decimal         `gorm:"type:decimal(20,2);default:0" json:"variance"`
	IsBalanced      *bool                   `gorm:"not null;default:false" json:"is_balanced"`
	ExceptionCount  int                     `json:"exception_count"`
	ErrorMessage    string                  `gorm:"size:500" json:"error_message"`
	CorrelationId   string                  `gorm:"size:40" json:"correlation_id"`
	StartedAt       time.Time               `gorm:"autoCreateTime" json:"started_at"`
	CompletedAt     *time.Time              `json:"completed_at"`
}

// ReconciliationException is one advisory finding. Exceptions are reported,
// never a hard gate: allocation is gated only by mapping completeness and
// validation. Employee-level findings carry an employee code, cost-center
// findings a cost account, and period-level findings neither.
type ReconciliationException struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RunId        int             `gorm:"index;not null" json:"run_id"`
	PayPeriodId  string          `gorm:"index;size:20;not null" json:"pay_period_id"`
	EmployeeCode string          `gorm:"size:20" json:"employee_code"`
	EmployeeName string          `gorm:"size:200" json:"employee_name"`
	CostCenter   string          `gorm:"size:20" json:"cost_center"`
	Reason       ExceptionReason `gorm:"type:enum('amount-mismatch','missing-in-source','unmapped-location','cost-center-variance','incomplete-sources');size:30;not null" json:"reason"`
	Detail       string          `gorm:"size:500" json:"detail"`
	Variance     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"variance"`
}

// EmployeeReconciliation is the joint per-employee view across sources built
// during a run; one row per employee per period.
type EmployeeReconciliation struct {
	ID           int             `gorm:"primary_key" json:"id"`
	RunId        int             `gorm:"index;not null" json:"run_id"`
	PayPeriodId  string          `gorm:"index;size:20;not null" json:"pay_period_id"`
	EmployeeCode string          `gorm:"index;size:20;not null" json:"employee_code"`
	EmployeeName string          `gorm:"size:200" json:"employee_name"`
	TandaHours   decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tanda_hours"`
	TandaCost    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"tanda_cost"`
	IQBHours     decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"iqb_hours"`
	IQBCost      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"iqb_cost"`
	CostVariance decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"cost_variance"`
	InTanda      *bool           `gorm:"not null;default:false" json:"in_tanda"`
	InIQB        *bool           `gorm:"not null;default:false" json:"in_iqb"`
}

// JournalReconciliation is the per-description view of the period's journal:
// each distinct line description netted (debit minus credit) and classified
// through the journal-description mapping. Unmapped descriptions stay in the
// run output so the operator can see what the mapping table is missing.
type JournalReconciliation struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	RunId              int             `gorm:"index;not null" json:"run_id"`
	PayPeriodId        string          `gorm:"index;size:20;not null" json:"pay_period_id"`
	Description        string          `gorm:"size:255;not null" json:"description"`
	GLAccount          string          `gorm:"size:20" json:"gl_account"`
	IncludeInTotalCost *bool           `gorm:"not null;default:false" json:"include_in_total_cost"`
	IsMapped           *bool           `gorm:"not null;default:false" json:"is_mapped"`
	JournalDebit       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"journal_debit"`
	JournalCredit      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"journal_credit"`
	JournalNet         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"journal_net"`
}

// ReplaceReconciliation wipes the prior run artifacts for the period and
// persists the new run, joint views, journal breakdown and exceptions
// together. Given the same upload set, re-running yields the same rows.
func ReplaceReconciliation(tx *gorm.DB, run *ReconciliationRun, employees []EmployeeReconciliation, journals []JournalReconciliation, exceptions []ReconciliationException) error {
	for _, model := range []interface{}{
		&ReconciliationException{}, &JournalReconciliation{},
		&EmployeeReconciliation{}, &ReconciliationRun{},
	} {
		if err := tx.Where("pay_period_id = ?", run.PayPeriodId).Delete(model).Error; err != nil {
			return err
		}
	}

	if err := tx.Create(run).Error; err != nil {
		return err
	}
	for i := range employees {
		employees[i].RunId = run.ID
	}
	for i := range journals {
		journals[i].RunId = run.ID
	}
	for i := range exceptions {
		exceptions[i].RunId = run.ID
	}
	if len(employees) > 0 {
		if err := tx.Create(&employees).Error; err != nil {
			return err
		}
	}
	if len(journals) > 0 {
		if err := tx.Create(&journals).Error; err != nil {
			return err
		}
	}
	if len(exceptions) > 0 {
		if err := tx.Create(&exceptions).Error; err != nil {
			return err
		}
	}
	return nil
}

func GetReconciliationRun(payPeriodId string) (*ReconciliationRun, error) {
	db := config.GetDB()
	var run ReconciliationRun
	err := db.Where("pay_period_id = ?", payPeriodId).Order("id DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func GetJournalReconciliations(payPeriodId string) ([]*JournalReconciliation, error) {
	db := config.GetDB()
	var rows []*JournalReconciliation
	err := db.Where("pay_period_id = ?", payPeriodId).Order("description").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func GetReconciliationExceptions(payPeriodId string) ([]*ReconciliationException, error) {
	db := config.GetDB()
	var exceptions []*ReconciliationException
	err := db.Where("pay_period_id = ?", payPeriodId).
		Order("employee_code, reason").Find(&exceptions).Error
	if err != nil {
		return nil, err
	}
	return exceptions, nil
}
