package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustToStepTruncatesTowardZero(t *testing.T) {
	got, err := adjustToStep(0.0257, 0.001, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.025, got)

	got, err = adjustToStep(40000.0000000002, 0.01, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 40000.0, got)

	got, err = adjustToStep(123.456, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 123.0, got)
}

func TestAdjustToStepExactMultipleUnchanged(t *testing.T) {
	got, err := adjustToStep(0.025, 0.001, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.025, got)
}

func TestAdjustToStepRejectsOutOfBounds(t *testing.T) {
	_, err := adjustToStep(0.0004, 0.0001, 0.001, 100)
	assert.Error(t, err, "below venue minimum must be rejected, not clamped")

	_, err = adjustToStep(250, 0.01, 0.01, 100)
	assert.Error(t, err, "above venue maximum must be rejected, not clamped")
}

func TestAdjustToStepRejectsBadStep(t *testing.T) {
	_, err := adjustToStep(1, 0, 0, 0)
	assert.Error(t, err)

	_, err = adjustToStep(1, -0.1, 0, 0)
	assert.Error(t, err)
}
