package models

import (
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"gorm.io/gorm"
)

// EmployeeAllocationSource records which origin is authoritative for one
// employee in one pay period. It lives server-side so the selection survives
// independent of any rendering concern, and re-runs read from here alone.
type EmployeeAllocationSource struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	PayPeriodId  string              `gorm:"size:20;not null;uniqueIndex:idx_source_period_employee" json:"pay_period_id"`
	EmployeeCode string              `gorm:"size:20;not null;uniqueIndex:idx_source_period_employee" json:"employee_code"`
	Source       AllocationSourceTag `gorm:"type:enum('iqb','tanda','override');size:20;not null;default:'iqb'" json:"source"`
	UpdatedBy    string              `gorm:"size:100" json:"updated_by"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// SelectAllocationSource upserts the per-employee source choice. Repeated
// toggling is idempotent and never touches other employees' selections or
// rules.
func SelectAllocationSource(tx *gorm.DB, payPeriodId, employeeCode string, source AllocationSourceTag, updatedBy string) (*EmployeeAllocationSource, error) {
	if !source.Valid() {
		return nil, &StructuralError{Field: "source", Value: string(source), Reason: "must be iqb, tanda or override"}
	}

	var selection EmployeeAllocationSource
	err := tx.Where("pay_period_id = ? AND employee_code = ?", payPeriodId, employeeCode).
		First(&selection).Error
	if err == gorm.ErrRecordNotFound {
		selection = EmployeeAllocationSource{
			PayPeriodId:  payPeriodId,
			EmployeeCode: employeeCode,
			Source:       source,
			UpdatedBy:    updatedBy,
		}
		if cerr := tx.Create(&selection).Error; cerr != nil {
			return nil, cerr
		}
		return &selection, nil
	}
	if err != nil {
		return nil, err
	}

	err = tx.Model(&selection).Updates(map[string]interface{}{
		"Source":    source,
		"UpdatedBy": updatedBy,
	}).Error
	if err != nil {
		return nil, err
	}
	return &selection, nil
}

// AllocationSourceFor returns the selected source for an employee, falling
// back to IQB when no explicit choice has been made.
func AllocationSourceFor(payPeriodId, employeeCode string) (AllocationSourceTag, error) {
	db := config.GetDB()
	var selection EmployeeAllocationSource
	err := db.Where("pay_period_id = ? AND employee_code = ?", payPeriodId, employeeCode).
		First(&selection).Error
	if err == gorm.ErrRecordNotFound {
		return AllocationSourceIQB, nil
	}
	if err != nil {
		return "", err
	}
	return selection.Source, nil
}
