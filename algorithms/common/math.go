// Package common holds the numeric helpers shared by the feature pipeline.
package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PopulationMeanStd returns the mean and population (N denominator)
// standard deviation of data.
func PopulationMeanStd(data []float64) (mean, std float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(data, nil)
}

// Standardize returns (x-mean)/(std+eps) using population statistics.
// eps keeps constant input finite; it maps to all zeros.
func Standardize(data []float64, eps float64) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}

	mean, std := PopulationMeanStd(data)
	copy(out, data)
	floats.AddConst(-mean, out)
	floats.Scale(1/(std+eps), out)
	return out
}

// Flatten concatenates rows in row-major order.
func Flatten(m [][]float64) []float64 {
	n := 0
	for _, row := range m {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

// ResizeCyclic reshapes flat data to rows x cols, repeating it from the start
// when it is too short and dropping the tail when it is too long.
// Empty input yields zeros.
func ResizeCyclic(flat []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	n := len(flat)
	for r := range out {
		out[r] = make([]float64, cols)
		if n == 0 {
			continue
		}
		for c := range out[r] {
			out[r][c] = flat[(r*cols+c)%n]
		}
	}
	return out
}

// AllFinite reports whether data holds no NaN or ±Inf.
func AllFinite[T ~float32 | ~float64](data []T) bool {
	for _, v := range data {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clamp restricts value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
