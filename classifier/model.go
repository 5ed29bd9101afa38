package classifier

import (
	"fmt"

	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

type stage struct {
	conv *conv3x3
	norm *batchNorm
	se   *squeezeExcite
}

// CNN is the squeeze-and-excitation convolutional network evaluated in
// process. It is immutable after NewCNN and needs no locking.
type CNN struct {
	labels Labels
	stages []stage
	hidden *dense
	output *dense
	logger logging.Logger
}

// NewCNN compiles a validated artifact into a ready network.
func NewCNN(a *Artifact) (*CNN, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	m := &CNN{
		labels: Labels(a.Labels).Clone(),
		hidden: newDense(a.Hidden.In, a.Hidden.Out, a.Hidden.Weight, a.Hidden.Bias),
		output: newDense(a.Output.In, a.Output.Out, a.Output.Weight, a.Output.Bias),
		logger: logging.WithFields(logging.Fields{
			"component": "cnn_classifier",
		}),
	}
	for _, s := range a.Stages {
		m.stages = append(m.stages, stage{
			conv: newConv3x3(s.Conv),
			norm: newBatchNorm(s.Norm),
			se:   newSqueezeExcite(s.Conv.Out, s.SE),
		})
	}
	return m, nil
}

// Load reads an artifact from path and compiles it.
func Load(path string) (*CNN, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewCNN(a)
}

// Labels returns the label set co-indexed with the output layer.
func (m *CNN) Labels() Labels {
	return m.labels.Clone()
}

// Score runs the forward pass. Malformed input and runtime panics are
// returned as ScoringFailed, never raised.
func (m *CNN) Score(t *features.Tensor) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(fmt.Errorf("%v", r), "panic during forward pass")
			out = ScoringFailed{Reason: fmt.Errorf("forward pass panicked: %v", r)}
		}
	}()

	if err := t.Validate(); err != nil {
		return ScoringFailed{Reason: err}
	}

	logits := m.forward(t)
	return Decide(logits, m.labels)
}

func (m *CNN) forward(t *features.Tensor) []float64 {
	x := newFeatureMap(1, t.Rows, t.Cols)
	for i, v := range t.Data {
		x.Data[i] = float64(v)
	}

	for _, s := range m.stages {
		x = s.conv.forward(x)
		s.norm.forwardReLU(x)
		x = maxPool2(x)
		s.se.forward(x)
	}

	// dropout is the identity at inference
	h := m.hidden.forward(globalAvgPool(x))
	relu(h)
	return m.output.forward(h)
}
