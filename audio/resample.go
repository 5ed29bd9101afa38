package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from rate `from` to rate `to`.
// Equal rates return the input unchanged. The result always holds
// round(len(samples)*to/from) samples. The input is padded with silence and
// the resampler flushed so nothing is left in the filter delay line; output
// past that length is dropped.
func Resample(samples []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	// Trailing silence pushes the last input samples through every filter
	// stage before the flush.
	padded := make([]float64, len(samples)+drainPadding(rs, from))
	copy(padded, samples)

	out, err := rs.Process(padded)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d -> %d: %w", from, to, err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("failed to flush resampler %d -> %d: %w", from, to, err)
	}
	out = append(out, tail...)

	return fitLength(out, ResampledLength(len(samples), from, to)), nil
}

func drainPadding(rs resampling.Resampler, from int) int {
	return from/5 + 2*rs.GetLatency()
}

// ResampledLength is the number of samples n input samples become.
func ResampledLength(n, from, to int) int {
	return max(1, int(math.Round(float64(n)*float64(to)/float64(from))))
}

// fitLength trims or zero-pads the tail so len(out) == n.
func fitLength(out []float64, n int) []float64 {
	if len(out) >= n {
		return out[:n]
	}
	return append(out, make([]float64, n-len(out))...)
}

// ToTarget brings a buffer to SampleRate, resampling when needed.
func ToTarget(buf *Buffer) (*Buffer, error) {
	if buf.SampleRate == SampleRate || buf.SampleRate == 0 {
		return &Buffer{Samples: buf.Samples, SampleRate: SampleRate}, nil
	}
	out, err := Resample(buf.Samples, buf.SampleRate, SampleRate)
	if err != nil {
		return nil, err
	}
	return &Buffer{Samples: out, SampleRate: SampleRate}, nil
}

// FirstChannel extracts channel 0 from interleaved samples.
func FirstChannel(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float64, len(interleaved)/channels)
	for i := range out {
		out[i] = interleaved[i*channels]
	}
	return out
}
