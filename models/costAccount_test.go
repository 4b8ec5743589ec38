package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCostAccountCode(t *testing.T) {
	code, err := ParseCostAccountCode("421-5000")
	require.NoError(t, err)
	assert.Equal(t, "421-5000", code.String())
	assert.Equal(t, "421", code.LocationCode())
	assert.Equal(t, "50", code.DepartmentCode())

	code, err = ParseCostAccountCode("910-9100")
	require.NoError(t, err)
	assert.Equal(t, "910", code.LocationCode())
	assert.Equal(t, "91", code.DepartmentCode())
}

func TestParseCostAccountCode_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"4215000",    // no dash
		"42-5000",    // location too short
		"4210-5000",  // location too long
		"421-500",    // department segment too short
		"421-50000",  // department segment too long
		"abc-5000",   // non-numeric location
		"421-50a0",   // non-numeric department segment
		" 421-5000",  // leading space
		"421-5000 ",  // trailing space
		"421 - 5000", // internal spaces
	} {
		_, err := ParseCostAccountCode(raw)
		require.Error(t, err, "expected %q to be rejected", raw)

		var structural *StructuralError
		require.True(t, errors.As(err, &structural))
		assert.Equal(t, "cost_account_code", structural.Field)
		assert.Equal(t, raw, structural.Value)
	}
}
