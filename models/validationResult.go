package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"gorm.io/gorm"
)

// ValidationCheck is one referential check's outcome. Violations carry capped
// exemplar values for operator diagnosis, never the full offending row set.
type ValidationCheck struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Passed      bool                  `json:"passed"`
	Violations  []ValidationViolation `json:"violations"`
}

type ValidationViolation struct {
	Value      string   `json:"value"`
	Exemplars  []string `json:"exemplars,omitempty"`
	TotalCount int      `json:"total_count"`
}

// ValidationResult is the persisted audit record for one upload's checks.
// Re-validating an upload replaces its prior result.
type ValidationResult struct {
	ID         int       `gorm:"primary_key" json:"id"`
	UploadId   int       `gorm:"uniqueIndex;not null" json:"upload_id"`
	Passed     *bool     `gorm:"not null;default:false" json:"passed"`
	ChecksJSON []byte    `gorm:"type:json" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *ValidationResult) Checks() ([]ValidationCheck, error) {
	var checks []ValidationCheck
	if len(r.ChecksJSON) == 0 {
		return checks, nil
	}
	err := json.Unmarshal(r.ChecksJSON, &checks)
	return checks, err
}

func SaveValidationResult(tx *gorm.DB, uploadId int, passed bool, checks []ValidationCheck) (*ValidationResult, error) {
	checksJSON, err := json.Marshal(checks)
	if err != nil {
		return nil, err
	}

	err = tx.Where("upload_id = ?", uploadId).Delete(&ValidationResult{}).Error
	if err != nil {
		return nil, err
	}

	result := ValidationResult{
		UploadId:   uploadId,
		Passed:     &passed,
		ChecksJSON: checksJSON,
	}
	if err := tx.Create(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func GetValidationResult(uploadId int) (*ValidationResult, error) {
	db := config.GetDB()
	var result ValidationResult
	err := db.Where("upload_id = ?", uploadId).First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}
