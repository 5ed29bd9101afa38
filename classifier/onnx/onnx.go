// Package onnx scores feature tensors with an exported ONNX model through
// ONNX Runtime.
package onnx

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

// Config describes the exported model.
type Config struct {
	ModelPath         string
	SharedLibraryPath string // onnxruntime shared library; empty uses the platform default
	InputName         string
	OutputName        string
	Labels            []string
}

// DefaultConfig returns the tensor names used by the export script.
func DefaultConfig() Config {
	return Config{
		InputName:  "input",
		OutputName: "output",
		Labels:     classifier.DefaultLabels,
	}
}

var initOnce sync.Once
var initErr error

// Scorer runs one session with bound input/output tensors. The tensors are
// reused between calls, so Score holds mu for the whole run.
type Scorer struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  classifier.Labels
	logger  logging.Logger
}

// New initializes ONNX Runtime (once per process) and opens the model.
func New(cfg Config) (*Scorer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx model path is required")
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = classifier.DefaultLabels
	}

	initOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", initErr)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifier.ErrCorruptArtifact, err)
	}
	if err := checkIO(inputs, outputs, cfg); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 1, features.Rows, features.Cols), make([]float32, features.Rows*features.Cols))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(cfg.Labels))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Scorer{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		labels:  classifier.Labels(cfg.Labels).Clone(),
		logger: logging.WithFields(logging.Fields{
			"component": "onnx_classifier",
			"model":     cfg.ModelPath,
		}),
	}, nil
}

// checkIO rejects a model whose tensors do not match the feature tensor and
// the label set. A non-positive leading dimension is a dynamic batch.
func checkIO(inputs, outputs []ort.InputOutputInfo, cfg Config) error {
	in, err := findTensor(inputs, cfg.InputName, "input")
	if err != nil {
		return err
	}
	if err := matchShape(in, ort.NewShape(1, 1, features.Rows, features.Cols)); err != nil {
		return err
	}

	out, err := findTensor(outputs, cfg.OutputName, "output")
	if err != nil {
		return err
	}
	if err := matchShape(out, ort.NewShape(1, int64(len(cfg.Labels)))); err != nil {
		return fmt.Errorf("%w (%d labels configured)", err, len(cfg.Labels))
	}
	return nil
}

func findTensor(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		if info.OrtValueType != ort.ONNXTypeTensor || info.DataType != ort.TensorElementDataTypeFloat {
			return info, fmt.Errorf("%w: %s %q is not a float32 tensor", classifier.ErrCorruptArtifact, kind, name)
		}
		return info, nil
	}
	return ort.InputOutputInfo{}, fmt.Errorf("%w: model has no %s named %q", classifier.ErrCorruptArtifact, kind, name)
}

func matchShape(info ort.InputOutputInfo, want ort.Shape) error {
	got := info.Dimensions
	ok := len(got) == len(want)
	for i := 0; ok && i < len(got); i++ {
		if i == 0 && got[i] <= 0 {
			continue
		}
		ok = got[i] == want[i]
	}
	if !ok {
		return fmt.Errorf("%w: %s has shape %v, want %v", classifier.ErrCorruptArtifact, info.Name, got, want)
	}
	return nil
}

func (s *Scorer) Labels() classifier.Labels {
	return s.labels.Clone()
}

// Score copies t into the bound input tensor and runs the session.
func (s *Scorer) Score(t *features.Tensor) classifier.Outcome {
	if err := t.Validate(); err != nil {
		return classifier.ScoringFailed{Reason: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.input.GetData(), t.Data)
	if err := s.session.Run(); err != nil {
		s.logger.Error(err, "session run failed")
		return classifier.ScoringFailed{Reason: err}
	}

	raw := s.output.GetData()
	logits := make([]float64, len(raw))
	for i, v := range raw {
		logits[i] = float64(v)
	}
	return classifier.Decide(logits, s.labels)
}

// Close releases the session and its tensors.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.session.Destroy()
	s.input.Destroy()
	s.output.Destroy()
	return err
}
