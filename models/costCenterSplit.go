package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const splitAccountPrefix = "SPL-"

// CostCenterSplit redistributes a pooled cost account across real cost
// accounts by fixed fractions. Payroll posts shared roles (e.g. a chef
// covering several venues) to an "SPL-" account; the splits push those
// dollars onto the venues before cost-center comparison. Percentage is a
// fraction of one, so 0.0750 is 7.5%.
type CostCenterSplit struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SourceAccount string          `gorm:"size:50;not null;uniqueIndex:idx_split_source_target" json:"source_account"`
	TargetAccount string          `gorm:"size:20;not null;uniqueIndex:idx_split_source_target" json:"target_account"`
	Percentage    decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"percentage"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSplitAccount reports whether a cost account is a shared pool that the
// splits table breaks down, rather than a directly comparable cost center.
func IsSplitAccount(code string) bool {
	return strings.HasPrefix(strings.TrimSpace(code), splitAccountPrefix)
}

// ActiveCostCenterSplits loads the active splits keyed by source account.
func ActiveCostCenterSplits(tx *gorm.DB) (map[string][]CostCenterSplit, error) {
	var rows []CostCenterSplit
	err := tx.Where("is_active = 1").Order("source_account, target_account").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	splits := map[string][]CostCenterSplit{}
	for _, row := range rows {
		splits[row.SourceAccount] = append(splits[row.SourceAccount], row)
	}
	return splits, nil
}
