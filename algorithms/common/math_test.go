package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopulationMeanStd(t *testing.T) {
	mean, std := PopulationMeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, 2, std, 1e-12)

	mean, std = PopulationMeanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestStandardize(t *testing.T) {
	out := Standardize([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 0)
	mean, std := PopulationMeanStd(out)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)
}

func TestStandardizeConstantIsFinite(t *testing.T) {
	out := Standardize([]float64{-80, -80, -80}, 1e-8)
	assert.True(t, AllFinite(out))
	assert.Equal(t, []float64{0, 0, 0}, out)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, Flatten([][]float64{{1, 2}, {3}, {4, 5}}))
}

func TestResizeCyclic(t *testing.T) {
	tests := []struct {
		name       string
		flat       []float64
		rows, cols int
		want       [][]float64
	}{
		{"repeat", []float64{1, 2, 3}, 2, 4, [][]float64{{1, 2, 3, 1}, {2, 3, 1, 2}}},
		{"truncate", []float64{1, 2, 3, 4, 5, 6, 7}, 2, 2, [][]float64{{1, 2}, {3, 4}}},
		{"exact", []float64{1, 2, 3, 4}, 2, 2, [][]float64{{1, 2}, {3, 4}}},
		{"empty", nil, 1, 2, [][]float64{{0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResizeCyclic(tt.flat, tt.rows, tt.cols))
		})
	}
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{0, -1, 1e300}))
	assert.False(t, AllFinite([]float64{0, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(-1)}))
	assert.True(t, AllFinite([]float32{0.5, -2}))
	assert.False(t, AllFinite([]float32{float32(math.NaN())}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, -1, 1))
	assert.Equal(t, -1.0, Clamp(-3, -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
}
