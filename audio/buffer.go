// Package audio holds the canonical mono PCM buffer and the cleaning steps
// every acquisition path runs before feature extraction.
package audio

import (
	"time"
)

const (
	// SampleRate is the fixed rate every buffer is brought to.
	SampleRate = 22050

	// ClipDuration is the window the classifier was trained on.
	ClipDuration = 3 * time.Second

	// TargetLength is the sample count of one ClipDuration at SampleRate.
	TargetLength = SampleRate * 3

	// SilenceThreshold is the peak amplitude below which a clip is treated as silent.
	SilenceThreshold = 1e-6
)

// Buffer is decoded mono PCM audio.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// NewBuffer wraps samples already at SampleRate.
func NewBuffer(samples []float64) *Buffer {
	return &Buffer{Samples: samples, SampleRate: SampleRate}
}

// Len returns the sample count.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Duration returns Len/SampleRate as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// PadOrTruncate returns exactly n samples: the first n when longer, or the
// input followed by zeros when shorter. The input is never modified.
func PadOrTruncate(samples []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, samples)
	return out
}
