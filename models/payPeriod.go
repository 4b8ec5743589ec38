package models

import (
	"errors"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"gorm.io/gorm"
)

// PayPeriod is the aggregate root: every upload, validation result,
// reconciliation and allocation rule is scoped to exactly one pay period and
// is superseded whenever that period's upload set changes.
type PayPeriod struct {
	PeriodId          string          `gorm:"primary_key;size:20" json:"period_id"` // ending date, e.g. '2025-11-30'
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `gorm:"index;not null" json:"period_end"`
	Status            PayPeriodStatus `gorm:"type:enum('uploaded','reconciled','allocated');default:'uploaded';size:20;not null" json:"status"`
	HasTanda          *bool           `gorm:"not null;default:false" json:"has_tanda"`
	HasIQB            *bool           `gorm:"not null;default:false" json:"has_iqb"`
	HasJournal        *bool           `gorm:"not null;default:false" json:"has_journal"`
	HasCostAllocation *bool           `gorm:"not null;default:false" json:"has_cost_allocation"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPayPeriod(periodId string) (*PayPeriod, error) {
	db := config.GetDB()
	var period PayPeriod
	err := db.Where("period_id = ?", periodId).First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &period, nil
}

func GetOrCreatePayPeriod(periodId string, periodStart, periodEnd time.Time) (*PayPeriod, error) {
	db := config.GetDB()
	period := PayPeriod{
		PeriodId:          periodId,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Status:            PayPeriodStatusUploaded,
		HasTanda:          utils.NewFalse(),
		HasIQB:            utils.NewFalse(),
		HasJournal:        utils.NewFalse(),
		HasCostAllocation: utils.NewFalse(),
	}
	err := db.Where("period_id = ?", periodId).FirstOrCreate(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (p *PayPeriod) MarkAllocationComplete(tx *gorm.DB) error {
	return tx.Model(p).Updates(map[string]interface{}{
		"HasCostAllocation": true,
		"Status":            PayPeriodStatusAllocated,
	}).Error
}

func (p *PayPeriod) MarkReconciled(tx *gorm.DB) error {
	return tx.Model(p).Update("Status", PayPeriodStatusReconciled).Error
}

// HasAllSources reports whether all three source files are present.
func (p *PayPeriod) HasAllSources() bool {
	return utils.DereferencePtr(p.HasTanda) &&
		utils.DereferencePtr(p.HasIQB) &&
		utils.DereferencePtr(p.HasJournal)
}
