package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// LocationMapping associates a timesheet (location, team) label with a
// canonical cost-account code. The mapping table is the single source of
// truth; the spreadsheet report is a derived view regenerated on demand.
//
// Timezone and address are passthrough descriptive fields; the engine never
// interprets them.
type LocationMapping struct {
	ID              int       `gorm:"primary_key" json:"id"`
	LocationName    string    `gorm:"size:200;not null;uniqueIndex:idx_location_team" json:"location_name"`
	TeamName        string    `gorm:"size:200;not null;uniqueIndex:idx_location_team" json:"team_name"`
	CostAccountCode string    `gorm:"size:20;not null" json:"cost_account_code"`
	DepartmentCode  string    `gorm:"size:10" json:"department_code"`
	Timezone        string    `gorm:"size:100" json:"timezone"`
	Address         string    `gorm:"size:255" json:"address"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Label renders the combined form used by timesheet exports,
// e.g. "Compliance & Risk - Financial Crime Manager".
func (m *LocationMapping) Label() string {
	return m.LocationName + " - " + m.TeamName
}

type NewLocationMapping struct {
	LocationName    string `json:"location_name" binding:"required"`
	TeamName        string `json:"team_name" binding:"required"`
	CostAccountCode string `json:"cost_account_code" binding:"required,costaccount"`
	Timezone        string `json:"timezone"`
	Address         string `json:"address"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// SaveLocationMappings upserts a batch by (location, team) key. Every code is
// format-validated before any row is written: a half-applied mapping set
// would leave the allocation run inconsistent, so the batch is applied whole
// or not at all.
func SaveLocationMappings(tx *gorm.DB, inputs []NewLocationMapping) (created int, updated int, err error) {
	for _, input := range inputs {
		if _, perr := ParseCostAccountCode(input.CostAccountCode); perr != nil {
			return 0, 0, perr
		}
	}

	for _, input := range inputs {
		code, _ := ParseCostAccountCode(input.CostAccountCode)
		mapping := LocationMapping{
			LocationName:    input.LocationName,
			TeamName:        input.TeamName,
			CostAccountCode: code.String(),
			DepartmentCode:  code.DepartmentCode(),
			Timezone:        input.Timezone,
			Address:         input.Address,
		}
		cerr := tx.Create(&mapping).Error
		if cerr == nil {
			created++
			continue
		}
		if !isDuplicateKeyErr(cerr) {
			return 0, 0, cerr
		}
		cerr = tx.Model(&LocationMapping{}).
			Where("location_name = ? AND team_name = ?", input.LocationName, input.TeamName).
			Updates(map[string]interface{}{
				"CostAccountCode": mapping.CostAccountCode,
				"DepartmentCode":  mapping.DepartmentCode,
				"Timezone":        mapping.Timezone,
				"Address":         mapping.Address,
				"IsActive":        true,
			}).Error
		if cerr != nil {
			return 0, 0, cerr
		}
		updated++
	}
	return created, updated, nil
}

// MappingResolver resolves (location, team) labels against a snapshot of the
// active mapping table. Lookup is exact-match only: inconsistent source
// labels surface as unmapped rather than being guessed, so a bad label can
// never silently misallocate cost.
type MappingResolver struct {
	byKey map[string]CostAccountCode
}

func mappingKey(location, team string) string {
	return location + "\x00" + team
}

func NewMappingResolver(tx *gorm.DB) (*MappingResolver, error) {
	var mappings []LocationMapping
	if err := tx.Where("is_active = 1").Find(&mappings).Error; err != nil {
		return nil, err
	}
	return NewMappingResolverFromMappings(mappings), nil
}

func NewMappingResolverFromMappings(mappings []LocationMapping) *MappingResolver {
	byKey := make(map[string]CostAccountCode, len(mappings))
	for _, m := range mappings {
		byKey[mappingKey(m.LocationName, m.TeamName)] = CostAccountCode(m.CostAccountCode)
	}
	return &MappingResolver{byKey: byKey}
}

// Resolve returns the cost-account code for a label, or ok=false when the
// label is unmapped.
func (r *MappingResolver) Resolve(location, team string) (CostAccountCode, bool) {
	code, ok := r.byKey[mappingKey(location, team)]
	return code, ok
}

func (r *MappingResolver) Len() int {
	return len(r.byKey)
}

// MappedCostAccountSet returns every cost-account code the mapping table
// knows about; validation uses it for the mapping-existence check.
func (r *MappingResolver) MappedCostAccountSet() map[string]bool {
	set := make(map[string]bool, len(r.byKey))
	for _, code := range r.byKey {
		set[code.String()] = true
	}
	return set
}

func GetLocationMappings() ([]*LocationMapping, error) {
	db := config.GetDB()
	var mappings []*LocationMapping
	err := db.Where("is_active = 1").
		Order("location_name, team_name").Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// WriteMappingWorkbook regenerates the flat mapping report from the table.
// The workbook is derived output only; nothing reads it back.
func WriteMappingWorkbook(mappings []*LocationMapping, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Location Mappings"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Tanda Label", "Location Name", "Team Name", "Cost Account Code", "Department Code", "Timezone", "Address"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, m := range mappings {
		values := []string{m.Label(), m.LocationName, m.TeamName, m.CostAccountCode, m.DepartmentCode, m.Timezone, m.Address}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save mapping workbook: %w", err)
	}
	return nil
}
