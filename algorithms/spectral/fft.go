// Package spectral implements the time-frequency transforms behind the
// mel spectrogram: FFT, centered STFT power, mel filter bank and dB scaling.
package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute returns the complex spectrum of a real signal.
// go-dsp handles non power-of-2 sizes.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// PowerBins returns |X[k]|² for the first n/2+1 (non-negative frequency) bins
// of a real frame, writing into dst when it has room.
func (f *FFT) PowerBins(frame []float64, dst []float64) []float64 {
	bins := len(frame)/2 + 1
	if cap(dst) < bins {
		dst = make([]float64, bins)
	}
	dst = dst[:bins]

	spectrum := f.Compute(frame)
	for k := range bins {
		re, im := real(spectrum[k]), imag(spectrum[k])
		dst[k] = re*re + im*im
	}
	return dst
}
