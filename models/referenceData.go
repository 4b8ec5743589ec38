package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/finfocus/labourrecon_backend/config"
)

// Reference data is one organization's fixed code vocabulary: locations,
// departments, pay components and the employee roster. Validation reads
// these as sets; the sets are cached in redis and invalidated on reload.

type RefLocation struct {
	ID           int    `gorm:"primary_key" json:"id"`
	LocationCode string `gorm:"uniqueIndex;size:3;not null" json:"location_code"`
	LocationName string `gorm:"size:200" json:"location_name"`
}

type RefDepartment struct {
	ID             int    `gorm:"primary_key" json:"id"`
	DepartmentCode string `gorm:"uniqueIndex;size:2;not null" json:"department_code"`
	DepartmentName string `gorm:"size:200" json:"department_name"`
}

type RefPayComponent struct {
	ID          int    `gorm:"primary_key" json:"id"`
	PayCompCode string `gorm:"uniqueIndex;size:50;not null" json:"pay_comp_code"`
	Description string `gorm:"size:200" json:"description"`
}

type RefEmployee struct {
	ID             int             `gorm:"primary_key" json:"id"`
	EmployeeCode   string          `gorm:"uniqueIndex;size:20;not null" json:"employee_code"`
	FullName       string          `gorm:"size:200" json:"full_name"`
	EmploymentType string          `gorm:"size:100" json:"employment_type"`
	IsSalaried     *bool           `gorm:"not null;default:false" json:"is_salaried"`
	AutoPayAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"auto_pay_amount"`
}

const (
	cacheKeyLocationSet   = "RefSet:locations"
	cacheKeyDepartmentSet = "RefSet:departments"
	cacheKeyPayCompSet    = "RefSet:paycomps"
	cacheKeyEmployeeSet   = "RefSet:employees"
)

func codeSet(tx *gorm.DB, cacheKey string, model interface{}, column string) (map[string]bool, error) {
	var codes []string
	exists, err := config.GetRedisObject(cacheKey, &codes)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := tx.Model(model).Pluck(column, &codes).Error; err != nil {
			return nil, err
		}
		if err := config.SetRedisObject(cacheKey, &codes, 0); err != nil {
			return nil, err
		}
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set, nil
}

func LocationCodeSet(tx *gorm.DB) (map[string]bool, error) {
	return codeSet(tx, cacheKeyLocationSet, &RefLocation{}, "location_code")
}

func DepartmentCodeSet(tx *gorm.DB) (map[string]bool, error) {
	return codeSet(tx, cacheKeyDepartmentSet, &RefDepartment{}, "department_code")
}

func PayCompCodeSet(tx *gorm.DB) (map[string]bool, error) {
	return codeSet(tx, cacheKeyPayCompSet, &RefPayComponent{}, "pay_comp_code")
}

func EmployeeCodeSet(tx *gorm.DB) (map[string]bool, error) {
	return codeSet(tx, cacheKeyEmployeeSet, &RefEmployee{}, "employee_code")
}

// InvalidateReferenceCaches drops the cached code sets; the loader calls it
// after replacing reference tables.
func InvalidateReferenceCaches() error {
	return config.DeleteRedisKeys(
		cacheKeyLocationSet,
		cacheKeyDepartmentSet,
		cacheKeyPayCompSet,
		cacheKeyEmployeeSet,
	)
}

// ReplaceReferenceTable wipes and reloads one reference table. Reference data
// loads are whole-file replacements, mirroring upload supersede semantics.
func ReplaceReferenceTable[T any](tx *gorm.DB, rows []T) error {
	var zero T
	if err := tx.Where("1 = 1").Delete(&zero).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func GetRefEmployee(tx *gorm.DB, employeeCode string) (*RefEmployee, error) {
	var emp RefEmployee
	err := tx.Where("employee_code = ?", employeeCode).First(&emp).Error
	if err != nil {
		return nil, err
	}
	return &emp, nil
}
