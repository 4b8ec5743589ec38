package workflow

import (
	"fmt"
	"testing"

	"bitbucket.org/finfocus/labourrecon_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCostAccountSegment_LocationAndDepartmentIndependent(t *testing.T) {
	costAccounts := []string{"421-5000", "421-9999", "900-5000"}
	locations := map[string]bool{"421": true}
	departments := map[string]bool{"50": true}

	locationCheck := checkCostAccountSegment(
		"Cost Account Code - Location Validation", "",
		costAccounts, locations,
		func(c models.CostAccountCode) string { return c.LocationCode() },
	)
	require.False(t, locationCheck.Passed)
	require.Len(t, locationCheck.Violations, 1)
	assert.Equal(t, "900", locationCheck.Violations[0].Value)
	assert.Equal(t, []string{"900-5000"}, locationCheck.Violations[0].Exemplars)

	// 421-9999 fails the department check even though its location is known.
	departmentCheck := checkCostAccountSegment(
		"Cost Account Code - Department Validation", "",
		costAccounts, departments,
		func(c models.CostAccountCode) string { return c.DepartmentCode() },
	)
	require.False(t, departmentCheck.Passed)
	require.Len(t, departmentCheck.Violations, 1)
	assert.Equal(t, "99", departmentCheck.Violations[0].Value)
	assert.Equal(t, []string{"421-9999"}, departmentCheck.Violations[0].Exemplars)
}

func TestCheckCostAccountSegment_MalformedCodesGetOwnBucket(t *testing.T) {
	// "42-500" carries a dash but fails structural parsing; reading segments
	// out of it would group it under a nonsense department "00".
	check := checkCostAccountSegment(
		"Cost Account Code - Department Validation", "",
		[]string{"42-500", "4215000", "", "421-5000"},
		map[string]bool{"50": true},
		func(c models.CostAccountCode) string { return c.DepartmentCode() },
	)
	require.False(t, check.Passed)
	require.Len(t, check.Violations, 1)
	assert.Equal(t, "malformed cost account code", check.Violations[0].Value)
	assert.ElementsMatch(t, []string{"42-500", "4215000"}, check.Violations[0].Exemplars)
	assert.Equal(t, 2, check.Violations[0].TotalCount)

	// No nonsense segment group was created for the malformed codes.
	for _, v := range check.Violations {
		assert.NotEqual(t, "00", v.Value)
	}
}

func TestCheckCostAccountSegment_WellFormedCodesOnlyPass(t *testing.T) {
	check := checkCostAccountSegment(
		"Cost Account Code - Location Validation", "",
		[]string{"421-5000", ""},
		map[string]bool{"421": true},
		func(c models.CostAccountCode) string { return c.LocationCode() },
	)
	assert.True(t, check.Passed)
	assert.Empty(t, check.Violations)
}

func TestCheckCostAccountSegment_ExemplarsCappedCountFull(t *testing.T) {
	var costAccounts []string
	for i := 0; i < 14; i++ {
		costAccounts = append(costAccounts, fmt.Sprintf("999-50%02d", i))
	}

	check := checkCostAccountSegment(
		"Cost Account Code - Location Validation", "",
		costAccounts, map[string]bool{"421": true},
		func(c models.CostAccountCode) string { return c.LocationCode() },
	)
	require.Len(t, check.Violations, 1)
	assert.Len(t, check.Violations[0].Exemplars, exemplarCap)
	assert.Equal(t, 14, check.Violations[0].TotalCount)
}

func TestCheckCodesExist(t *testing.T) {
	check := checkCodesExist(
		"Employee Code Validation", "",
		[]string{"E100", "E200", "E300", ""},
		map[string]bool{"E100": true},
	)
	require.False(t, check.Passed)
	require.Len(t, check.Violations, 1)
	assert.Equal(t, []string{"E200", "E300"}, check.Violations[0].Exemplars)
	assert.Equal(t, 2, check.Violations[0].TotalCount)

	passed := checkCodesExist(
		"Employee Code Validation", "",
		[]string{"E100"},
		map[string]bool{"E100": true},
	)
	assert.True(t, passed.Passed)
}

func TestCheckCodesExist_MissingListCapped(t *testing.T) {
	var codes []string
	for i := 0; i < 25; i++ {
		codes = append(codes, fmt.Sprintf("E%03d", i))
	}

	check := checkCodesExist("Employee Code Validation", "", codes, map[string]bool{})
	require.Len(t, check.Violations, 1)
	assert.Len(t, check.Violations[0].Exemplars, missingCodeCap)
	assert.Equal(t, 25, check.Violations[0].TotalCount)
}
