package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectUnmappedLabels(t *testing.T) {
	resolver := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
	})
	shifts := []models.TandaShift{
		{EmployeeCode: "E100", LocationName: "Perth CBD", TeamName: "Sales"},
		{EmployeeCode: "E100", LocationName: "Fremantle", TeamName: "Kitchen"},
		{EmployeeCode: "E200", LocationName: "Fremantle", TeamName: "Kitchen"},
		{EmployeeCode: "E200", LocationName: "Fremantle", TeamName: "Kitchen"},
		{EmployeeCode: "E300", LocationName: "Fremantle", TeamName: "Front of House"},
	}

	labels := collectUnmappedLabels(shifts, resolver)
	require.Len(t, labels, 2)

	// Sorted by (location, team); employee counts are distinct employees,
	// not shift rows.
	assert.Equal(t, "Fremantle", labels[0].LocationName)
	assert.Equal(t, "Front of House", labels[0].TeamName)
	assert.Equal(t, 1, labels[0].EmployeeCount)

	assert.Equal(t, "Kitchen", labels[1].TeamName)
	assert.Equal(t, 2, labels[1].EmployeeCount)
}

func TestCollectUnmappedLabels_FullyMapped(t *testing.T) {
	resolver := models.NewMappingResolverFromMappings([]models.LocationMapping{
		{LocationName: "Perth CBD", TeamName: "Sales", CostAccountCode: "421-5000"},
	})
	shifts := []models.TandaShift{
		{EmployeeCode: "E100", LocationName: "Perth CBD", TeamName: "Sales"},
	}

	assert.Empty(t, collectUnmappedLabels(shifts, resolver))
}

func TestFinishMappingSave_CountsSurviveAllocationFailure(t *testing.T) {
	// The mapping batch commits before the allocation re-run; when the re-run
	// fails the caller must still learn what the save did.
	allocErr := errors.New("allocation re-run failed")

	result, err := finishMappingSave(3, 2, nil, allocErr)
	require.ErrorIs(t, err, allocErr)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.CreatedCount)
	assert.Equal(t, 2, result.UpdatedCount)
	assert.Nil(t, result.AllocationResult)
}

func TestFinishMappingSave_Success(t *testing.T) {
	allocation := &RunAllocationResult{
		IQBResult: &AllocationResult{Source: models.AllocationSourceIQB, RulesCreated: 4},
	}

	result, err := finishMappingSave(1, 0, allocation, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	assert.Same(t, allocation, result.AllocationResult)
}
