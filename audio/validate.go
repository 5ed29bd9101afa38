package audio

import (
	"math"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
)

// Report summarizes what Validate changed. It is only used for logging.
type Report struct {
	Peak     float64 // peak |x| after NaN/Inf repair, before rescaling or clipping
	NaNs     int
	Infs     int
	Rescaled bool
	Silent   bool
}

// Validate cleans samples in place so they are safe for feature extraction.
//
// NaN becomes 0 and ±Inf becomes ±1. A buffer that held ±Inf is then
// clipped to [-1, 1] as a whole; otherwise, if the peak exceeds 1, the whole
// buffer is scaled by 1/peak. A peak below SilenceThreshold marks the clip
// silent. Zero samples is ErrEmptyInput, never silence.
func Validate(samples []float64) (Report, error) {
	var r Report
	if len(samples) == 0 {
		return r, ClientInput("validate", ErrEmptyInput)
	}

	r.NaNs, r.Infs = RepairNonFinite(samples)
	r.Peak = Peak(samples)

	if r.Peak > 1.0 && r.Infs == 0 {
		scale := 1.0 / r.Peak
		for i := range samples {
			samples[i] *= scale
		}
		r.Rescaled = true
	}

	for i, v := range samples {
		samples[i] = common.Clamp(v, -1, 1)
	}

	r.Silent = Peak(samples) < SilenceThreshold
	return r, nil
}

// RepairNonFinite replaces NaN with 0 and ±Inf with ±1 in place and returns
// how many of each it found.
func RepairNonFinite(samples []float64) (nans, infs int) {
	for i, v := range samples {
		switch {
		case math.IsNaN(v):
			samples[i] = 0
			nans++
		case math.IsInf(v, 1):
			samples[i] = 1
			infs++
		case math.IsInf(v, -1):
			samples[i] = -1
			infs++
		}
	}
	return nans, infs
}

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	peak := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}
