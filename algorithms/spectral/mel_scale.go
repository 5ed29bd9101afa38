package spectral

import (
	"fmt"
	"math"
)

// Slaney (Auditory Toolbox) mel scale constants: linear below 1 kHz,
// logarithmic above.
const (
	slaneyFSp       = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27.0

// MelScale converts between Hz and mel. HTK selects the 2595·log10 formula;
// the zero value uses the Slaney scale.
type MelScale struct {
	HTK bool
}

// NewMelScale creates a Slaney mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.HTK {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	if hz < slaneyMinLogHz {
		return hz / slaneyFSp
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.HTK {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}
	if mel < slaneyMinLogMel {
		return mel * slaneyFSp
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
}

// MelFrequencies returns n frequencies evenly spaced in mel between lowFreq and highFreq.
func (ms *MelScale) MelFrequencies(n int, lowFreq, highFreq float64) []float64 {
	lowMel, highMel := ms.HzToMel(lowFreq), ms.HzToMel(highFreq)
	out := make([]float64, n)
	if n == 1 {
		out[0] = ms.MelToHz(lowMel)
		return out
	}
	step := (highMel - lowMel) / float64(n-1)
	for i := range out {
		out[i] = ms.MelToHz(lowMel + float64(i)*step)
	}
	return out
}

// FilterBank is a [numFilters][fftSize/2+1] matrix of triangular filters.
type FilterBank [][]float64

// CreateMelFilterBank builds triangular filters over the FFT bins with
// area normalization (each filter scaled by 2/bandwidth), matching the
// "slaney" norm of common spectrogram front-ends.
func (ms *MelScale) CreateMelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) (FilterBank, error) {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid filter bank parameters: filters=%d fft=%d rate=%d", numFilters, fftSize, sampleRate)
	}
	if highFreq <= lowFreq || highFreq > float64(sampleRate)/2 {
		return nil, fmt.Errorf("invalid frequency range %.1f-%.1f Hz", lowFreq, highFreq)
	}

	bins := fftSize/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	melF := ms.MelFrequencies(numFilters+2, lowFreq, highFreq)
	fdiff := make([]float64, len(melF)-1)
	for i := range fdiff {
		fdiff[i] = melF[i+1] - melF[i]
	}

	bank := make(FilterBank, numFilters)
	for m := range bank {
		bank[m] = make([]float64, bins)
		enorm := 2.0 / (melF[m+2] - melF[m])
		for k, f := range fftFreqs {
			lower := (f - melF[m]) / fdiff[m]
			upper := (melF[m+2] - f) / fdiff[m+1]
			bank[m][k] = math.Max(0, math.Min(lower, upper)) * enorm
		}
	}

	return bank, nil
}

// Apply projects a Time x Frequency power spectrogram onto the filters and
// returns a Mel x Time matrix.
func (fb FilterBank) Apply(spec *Spectrogram) ([][]float64, error) {
	if len(fb) == 0 {
		return nil, fmt.Errorf("empty filter bank")
	}
	if spec.FreqBins != len(fb[0]) {
		return nil, fmt.Errorf("spectrogram has %d bins, filter bank expects %d", spec.FreqBins, len(fb[0]))
	}

	mel := make([][]float64, len(fb))
	for m, filter := range fb {
		mel[m] = make([]float64, spec.TimeFrames)
		for t, frame := range spec.Power {
			sum := 0.0
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k]
				}
			}
			mel[m][t] = sum
		}
	}
	return mel, nil
}
