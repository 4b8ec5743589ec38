package workflow

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTolerance = decimal.RequireFromString("0.05")

func TestParseOverride_TwoWaySplit(t *testing.T) {
	allocations, err := ParseOverride("421-5000: 60, 422-5000: 40", testTolerance)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "421-5000", allocations[0].CostAccountCode.String())
	assert.True(t, allocations[0].Percentage.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, "422-5000", allocations[1].CostAccountCode.String())
	assert.True(t, allocations[1].Percentage.Equal(decimal.NewFromInt(40)))
}

func TestParseOverride_PercentSignOptional(t *testing.T) {
	allocations, err := ParseOverride("421-5000: 60%, 422-5000: 40%", testTolerance)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	single, err := ParseOverride("910-9100: 100", testTolerance)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.True(t, single[0].Percentage.Equal(decimal.NewFromInt(100)))
}

func TestParseOverride_SumOutsideToleranceRejected(t *testing.T) {
	_, err := ParseOverride("421-5000: 60, 422-5000: 35", testTolerance)
	require.Error(t, err)

	var parseErr *OverrideParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Reason, "95")
	assert.Empty(t, parseErr.Tokens)
}

func TestParseOverride_SumWithinToleranceAccepted(t *testing.T) {
	// Rounding residue of a three-way split sums to 99.99.
	allocations, err := ParseOverride("421-5000: 33.33, 422-5000: 33.33, 423-5000: 33.33", testTolerance)
	require.NoError(t, err)
	require.Len(t, allocations, 3)

	// Under the tighter historical band the edge is out: 0.01 off is
	// rejected when the tolerance is 0.01.
	_, err = ParseOverride("421-5000: 33.33, 422-5000: 33.33, 423-5000: 33.33", decimal.RequireFromString("0.01"))
	require.Error(t, err)
}

func TestParseOverride_BadTokensAllCollected(t *testing.T) {
	_, err := ParseOverride("421-500: 60, just words, 422-5000: x, 423-5000: 40", testTolerance)
	require.Error(t, err)

	var parseErr *OverrideParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, []string{"421-500: 60", "just words", "422-5000: x"}, parseErr.Tokens)
}

func TestParseOverride_DuplicateCodeRejected(t *testing.T) {
	_, err := ParseOverride("421-5000: 60, 421-5000: 40", testTolerance)
	require.Error(t, err)

	var parseErr *OverrideParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, []string{"421-5000: 40"}, parseErr.Tokens)
}

func TestParseOverride_PercentageBounds(t *testing.T) {
	_, err := ParseOverride("421-5000: -10, 422-5000: 110", testTolerance)
	require.Error(t, err)

	var parseErr *OverrideParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Len(t, parseErr.Tokens, 2)
}

func TestParseOverride_EmptyText(t *testing.T) {
	_, err := ParseOverride("   ", testTolerance)
	require.Error(t, err)

	var parseErr *OverrideParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Empty(t, parseErr.Tokens)
}
