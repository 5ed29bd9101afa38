// Package windowing provides the analysis windows used by the STFT.
package windowing

import (
	"fmt"
	"math"
)

// Hann is a precomputed Hann window. The periodic form (denominator N) is
// what spectrogram front-ends use; the symmetric form (N-1) suits filter design.
type Hann struct {
	coefficients []float64
	periodic     bool
}

// NewHann creates a Hann window of the given size.
func NewHann(size int, periodic bool) *Hann {
	h := &Hann{
		coefficients: make([]float64, max(size, 0)),
		periodic:     periodic,
	}

	if size == 1 {
		h.coefficients[0] = 1
		return h
	}

	denominator := float64(size - 1)
	if periodic {
		denominator = float64(size)
	}
	for i := range h.coefficients {
		h.coefficients[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/denominator)
	}
	return h
}

// NewPeriodicHann is shorthand for NewHann(size, true).
func NewPeriodicHann(size int) *Hann {
	return NewHann(size, true)
}

// ApplyInPlace multiplies frame by the window.
func (h *Hann) ApplyInPlace(frame []float64) error {
	if len(frame) != len(h.coefficients) {
		return fmt.Errorf("frame length (%d) doesn't match window size (%d)", len(frame), len(h.coefficients))
	}
	for i, c := range h.coefficients {
		frame[i] *= c
	}
	return nil
}

// Coefficients returns a copy of the window.
func (h *Hann) Coefficients() []float64 {
	out := make([]float64, len(h.coefficients))
	copy(out, h.coefficients)
	return out
}

// Size returns the window length.
func (h *Hann) Size() int {
	return len(h.coefficients)
}

// Periodic reports whether the window was built with denominator N.
func (h *Hann) Periodic() bool {
	return h.periodic
}
