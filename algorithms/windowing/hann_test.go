package windowing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicHann(t *testing.T) {
	h := NewPeriodicHann(4)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5}, h.Coefficients(), 1e-12)
	assert.True(t, h.Periodic())
}

func TestSymmetricHann(t *testing.T) {
	h := NewHann(5, false)
	c := h.Coefficients()
	assert.InDelta(t, 0, c[0], 1e-12)
	assert.InDelta(t, 1, c[2], 1e-12)
	assert.InDelta(t, 0, c[4], 1e-12)
}

func TestPeriodicHannLargeWindowIsNotSymmetric(t *testing.T) {
	h := NewPeriodicHann(2048)
	c := h.Coefficients()
	assert.Equal(t, 2048, h.Size())
	assert.InDelta(t, 1.0, c[1024], 1e-12)
	assert.InDelta(t, c[1], c[2047], 1e-12)
	assert.Greater(t, math.Abs(c[2047]), 0.0)
}

func TestApplyInPlace(t *testing.T) {
	h := NewPeriodicHann(4)
	frame := []float64{2, 2, 2, 2}
	require.NoError(t, h.ApplyInPlace(frame))
	assert.InDeltaSlice(t, []float64{0, 1, 2, 1}, frame, 1e-12)

	assert.Error(t, h.ApplyInPlace(make([]float64, 3)))
}

func TestSizeOne(t *testing.T) {
	assert.Equal(t, []float64{1}, NewPeriodicHann(1).Coefficients())
}
