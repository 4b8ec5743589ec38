package workflow

import (
	"sort"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnmappedLabel is one (location, team) pair present in the period's
// timesheet data with no mapping, with how many employees it blocks.
type UnmappedLabel struct {
	LocationName  string `json:"location_name"`
	TeamName      string `json:"team_name"`
	EmployeeCount int    `json:"employee_count"`
}

type MappingSaveResult struct {
	CreatedCount     int                  `json:"created_count"`
	UpdatedCount     int                  `json:"updated_count"`
	AllocationResult *RunAllocationResult `json:"allocation_result"`
}

// UnmappedLabels surfaces the labels an operator must map before Tanda
// allocation can reach full coverage for the period.
func UnmappedLabels(db *gorm.DB, payPeriodId string) ([]UnmappedLabel, error) {
	shifts, err := activeRecords[models.TandaShift](db, payPeriodId, models.SourceSystemTanda)
	if err != nil {
		return nil, err
	}
	resolver, err := models.NewMappingResolver(db)
	if err != nil {
		return nil, err
	}
	return collectUnmappedLabels(shifts, resolver), nil
}

func collectUnmappedLabels(shifts []models.TandaShift, resolver *models.MappingResolver) []UnmappedLabel {
	type labelKey struct {
		location string
		team     string
	}
	employees := map[labelKey]map[string]bool{}
	var order []labelKey

	for _, s := range shifts {
		if _, ok := resolver.Resolve(s.LocationName, s.TeamName); ok {
			continue
		}
		key := labelKey{location: s.LocationName, team: s.TeamName}
		if employees[key] == nil {
			employees[key] = map[string]bool{}
			order = append(order, key)
		}
		employees[key][s.EmployeeCode] = true
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].location != order[j].location {
			return order[i].location < order[j].location
		}
		return order[i].team < order[j].team
	})

	labels := make([]UnmappedLabel, 0, len(order))
	for _, key := range order {
		labels = append(labels, UnmappedLabel{
			LocationName:  key.location,
			TeamName:      key.team,
			EmployeeCount: len(employees[key]),
		})
	}
	return labels
}

// SaveMappingsAndReallocate is the verification workflow's commit point:
// the corrected mappings are applied as one all-or-nothing batch, then the
// affected period's allocation is re-run in full. A single new mapping can
// change which employees are mapped, so the re-run is never incremental.
func SaveMappingsAndReallocate(db *gorm.DB, logger *logrus.Logger, payPeriodId string, inputs []models.NewLocationMapping) (*MappingSaveResult, error) {
	tx := db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	created, updated, err := models.SaveLocationMappings(tx, inputs)
	if err != nil {
		tx.Rollback()
		config.LogError(logger, "mappingVerification.go", "SaveMappingsAndReallocate", "SaveLocationMappings", payPeriodId, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	allocation, err := RunAllocation(db, logger, payPeriodId)
	if err != nil {
		config.LogError(logger, "mappingVerification.go", "SaveMappingsAndReallocate", "RunAllocation", payPeriodId, err)
	} else {
		logger.WithFields(logrus.Fields{
			"pay_period": payPeriodId,
			"created":    created,
			"updated":    updated,
		}).Info("mappings saved and allocation re-run")
	}
	return finishMappingSave(created, updated, allocation, err)
}

// finishMappingSave shapes the workflow's return. The mapping counts always
// survive: the batch commits before the allocation re-run starts, so an
// allocation failure travels back alongside the counts, never instead of
// them.
func finishMappingSave(created, updated int, allocation *RunAllocationResult, err error) (*MappingSaveResult, error) {
	return &MappingSaveResult{
		CreatedCount:     created,
		UpdatedCount:     updated,
		AllocationResult: allocation,
	}, err
}
