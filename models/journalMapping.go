package models

import (
	"time"

	"gorm.io/gorm"
)

// JournalDescriptionMapping classifies a journal line description: which GL
// account it belongs to and whether its netted amount counts toward the
// period's total labour cost. Descriptions not in this table show up in the
// run output as unmapped.
type JournalDescriptionMapping struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	Description        string    `gorm:"uniqueIndex;size:255;not null" json:"description"`
	GLAccount          string    `gorm:"size:20" json:"gl_account"`
	IncludeInTotalCost *bool     `gorm:"not null;default:false" json:"include_in_total_cost"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveJournalDescriptionMappings loads the active mappings keyed by
// description.
func ActiveJournalDescriptionMappings(tx *gorm.DB) (map[string]JournalDescriptionMapping, error) {
	var rows []JournalDescriptionMapping
	if err := tx.Where("is_active = 1").Find(&rows).Error; err != nil {
		return nil, err
	}
	mappings := make(map[string]JournalDescriptionMapping, len(rows))
	for _, row := range rows {
		mappings[row.Description] = row
	}
	return mappings, nil
}
