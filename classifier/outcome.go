package classifier

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-emotion/features"
)

// Scorer scores one tensor. Implementations are read-only after construction
// and safe for concurrent use.
type Scorer interface {
	Score(t *features.Tensor) Outcome
	Labels() Labels
}

// Outcome is either Scored or ScoringFailed.
type Outcome interface {
	outcome()
}

// Scored is a successful forward pass.
type Scored struct {
	Label         string
	Index         int
	Logits        []float64
	Probabilities []float64
	Confidence    float64 // softmax probability of Label
}

// ScoringFailed carries the reason the scorer could not produce logits.
type ScoringFailed struct {
	Reason error
}

func (Scored) outcome()        {}
func (ScoringFailed) outcome() {}

func (f ScoringFailed) Error() string {
	return fmt.Sprintf("scoring failed: %v", f.Reason)
}

func (f ScoringFailed) Unwrap() error {
	return f.Reason
}

// Argmax returns the index of the largest value; ties go to the lowest index.
// NaN values never win. Empty input returns -1.
func Argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

// Softmax returns exp(x-max)/Σexp(x-max).
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}

	m := math.Inf(-1)
	for _, v := range logits {
		m = math.Max(m, v)
	}

	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Decide turns raw logits into an Outcome against labels.
func Decide(logits []float64, labels Labels) Outcome {
	if len(labels) == 0 {
		return ScoringFailed{Reason: fmt.Errorf("empty label set")}
	}
	if len(logits) != len(labels) {
		return ScoringFailed{Reason: fmt.Errorf("model produced %d outputs for %d labels", len(logits), len(labels))}
	}
	for i, v := range logits {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ScoringFailed{Reason: fmt.Errorf("non-finite logit at index %d", i)}
		}
	}

	idx := Argmax(logits)
	probs := Softmax(logits)
	return Scored{
		Label:         labels[idx],
		Index:         idx,
		Logits:        logits,
		Probabilities: probs,
		Confidence:    probs[idx],
	}
}
