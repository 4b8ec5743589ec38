package models

import (
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Upload is one received batch of source records. Records are immutable once
// validated; a re-upload supersedes the prior batch by deactivating it, it
// never mutates rows in place.
type Upload struct {
	ID           int          `gorm:"primary_key" json:"id"`
	PayPeriodId  string       `gorm:"index;size:20;not null" json:"pay_period_id"`
	SourceSystem SourceSystem `gorm:"type:enum('Micropay_IQB','Tanda_Timesheet','Micropay_Journal');size:30;index;not null" json:"source_system"`
	FileName     string       `gorm:"size:255" json:"file_name"`
	RowCount     int          `json:"row_count"`
	IsActive     *bool        `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// IQBDetail is a payroll-export row: one pay component posted against one
// cost account for one employee.
type IQBDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	UploadId        int             `gorm:"index;not null" json:"upload_id"`
	EmployeeCode    string          `gorm:"index;size:20;not null" json:"employee_code"`
	FullName        string          `gorm:"size:200" json:"full_name"`
	CostAccountCode string          `gorm:"index;size:20" json:"cost_account_code"`
	PayCompCode     string          `gorm:"size:50" json:"pay_comp_code"`
	TransactionType string          `gorm:"size:100" json:"transaction_type"`
	Hours           decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"hours"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount"`
}

// TandaShift is a timesheet row: hours and cost for one employee at one
// location/team. The (location, team) pair is the mapping key; it carries no
// cost-account code of its own.
type TandaShift struct {
	ID           int             `gorm:"primary_key" json:"id"`
	UploadId     int             `gorm:"index;not null" json:"upload_id"`
	EmployeeCode string          `gorm:"index;size:20;not null" json:"employee_code"`
	EmployeeName string          `gorm:"size:200" json:"employee_name"`
	LocationName string          `gorm:"size:200" json:"location_name"`
	TeamName     string          `gorm:"size:200" json:"team_name"`
	ShiftHours   decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"shift_hours"`
	ShiftCost    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"shift_cost"`
	IsLeave      *bool           `gorm:"not null;default:false" json:"is_leave"`
	LeaveType    string          `gorm:"size:100" json:"leave_type"`
}

// JournalLine is a general-ledger journal row. Journal data is pre-aggregated
// at the ledger level and carries no per-employee cost-account detail.
type JournalLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	UploadId      int             `gorm:"index;not null" json:"upload_id"`
	LedgerAccount string          `gorm:"index;size:20" json:"ledger_account"`
	CostAccount   string          `gorm:"size:20" json:"cost_account"`
	Description   string          `gorm:"size:255" json:"description"`
	EmployeeCode  string          `gorm:"index;size:20" json:"employee_code"`
	Debit         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"debit"`
	Credit        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"credit"`
}

// CreateUpload registers a new batch and deactivates any prior active upload
// for the same (period, source). It also flips the period's source-presence
// flag. Record rows are inserted by the caller inside the same transaction.
func CreateUpload(tx *gorm.DB, payPeriodId string, source SourceSystem, fileName string, rowCount int) (*Upload, error) {
	err := tx.Model(&Upload{}).
		Where("pay_period_id = ? AND source_system = ? AND is_active = 1", payPeriodId, source).
		Update("IsActive", false).Error
	if err != nil {
		return nil, err
	}

	upload := Upload{
		PayPeriodId:  payPeriodId,
		SourceSystem: source,
		FileName:     fileName,
		RowCount:     rowCount,
		IsActive:     utils.NewTrue(),
	}
	if err := tx.Create(&upload).Error; err != nil {
		return nil, err
	}

	flag := map[SourceSystem]string{
		SourceSystemIQB:     "HasIQB",
		SourceSystemTanda:   "HasTanda",
		SourceSystemJournal: "HasJournal",
	}[source]
	err = tx.Model(&PayPeriod{}).Where("period_id = ?", payPeriodId).
		Update(flag, true).Error
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// ActiveUpload returns the active upload for a period and source, or nil when
// that source has not been uploaded yet.
func ActiveUpload(tx *gorm.DB, payPeriodId string, source SourceSystem) (*Upload, error) {
	var upload Upload
	err := tx.Where("pay_period_id = ? AND source_system = ? AND is_active = 1", payPeriodId, source).
		First(&upload).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &upload, nil
}

func GetUpload(id int) (*Upload, error) {
	db := config.GetDB()
	var upload Upload
	if err := db.First(&upload, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &upload, nil
}
