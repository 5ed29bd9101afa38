package classifier

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// ArtifactVersion is the only layout version this package reads.
const ArtifactVersion = 1

// NumStages is the number of conv/SE stages in the network.
const NumStages = 4

// ErrCorruptArtifact wraps every artifact validation failure.
var ErrCorruptArtifact = errors.New("corrupt model artifact")

// Artifact is the serialized network: weights exported from the trained model
// in PyTorch layout (conv weights are out x in x 3 x 3, dense weights out x in).
type Artifact struct {
	Version int      `msgpack:"version"`
	Labels  []string `msgpack:"labels"`
	Stages  []Stage  `msgpack:"stages"`
	Hidden  Dense    `msgpack:"hidden"`
	Output  Dense    `msgpack:"output"`
}

// Stage is conv3x3 -> batch norm -> ReLU -> maxpool2 -> squeeze-excitation.
type Stage struct {
	Conv Conv          `msgpack:"conv"`
	Norm BatchNorm     `msgpack:"norm"`
	SE   SqueezeExcite `msgpack:"se"`
}

type Conv struct {
	In     int       `msgpack:"in"`
	Out    int       `msgpack:"out"`
	Weight []float32 `msgpack:"weight"`
	Bias   []float32 `msgpack:"bias"`
}

type BatchNorm struct {
	Gamma []float32 `msgpack:"gamma"`
	Beta  []float32 `msgpack:"beta"`
	Mean  []float32 `msgpack:"mean"`
	Var   []float32 `msgpack:"var"`
	Eps   float32   `msgpack:"eps"` // 0 means 1e-5
}

// SqueezeExcite holds the two bias-free linear layers of an SE block.
type SqueezeExcite struct {
	Hidden int       `msgpack:"hidden"`
	Reduce []float32 `msgpack:"reduce"` // hidden x channels
	Expand []float32 `msgpack:"expand"` // channels x hidden
}

type Dense struct {
	In     int       `msgpack:"in"`
	Out    int       `msgpack:"out"`
	Weight []float32 `msgpack:"weight"`
	Bias   []float32 `msgpack:"bias"`
}

// LoadArtifact reads and validates an artifact file. A missing label list
// falls back to DefaultLabels.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	return ReadArtifact(f)
}

// ReadArtifact decodes and validates an artifact from r.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := msgpack.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if len(a.Labels) == 0 {
		a.Labels = append([]string(nil), DefaultLabels...)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// WriteArtifact encodes a to w.
func WriteArtifact(w io.Writer, a *Artifact) error {
	if err := msgpack.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	return nil
}

// SaveArtifact writes a to path.
func SaveArtifact(path string, a *Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model artifact: %w", err)
	}
	if err := WriteArtifact(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArtifact, fmt.Sprintf(format, args...))
}

// Validate checks every tensor shape and that the output dimension equals
// the number of labels.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return corrupt("unsupported version %d", a.Version)
	}
	if len(a.Stages) != NumStages {
		return corrupt("expected %d stages, got %d", NumStages, len(a.Stages))
	}

	seen := make(map[string]bool, len(a.Labels))
	for _, l := range a.Labels {
		if l == "" || seen[l] {
			return corrupt("invalid or duplicate label %q", l)
		}
		seen[l] = true
	}

	in := 1
	for i, s := range a.Stages {
		c := s.Conv
		if c.In != in || c.Out <= 0 {
			return corrupt("stage %d: conv %d->%d, expected input %d", i, c.In, c.Out, in)
		}
		if len(c.Weight) != c.Out*c.In*9 || len(c.Bias) != c.Out {
			return corrupt("stage %d: conv weight %d bias %d for %d->%d", i, len(c.Weight), len(c.Bias), c.In, c.Out)
		}
		n := s.Norm
		if len(n.Gamma) != c.Out || len(n.Beta) != c.Out || len(n.Mean) != c.Out || len(n.Var) != c.Out {
			return corrupt("stage %d: batch norm parameters do not match %d channels", i, c.Out)
		}
		for ch, v := range n.Var {
			if v < 0 {
				return corrupt("stage %d: negative running variance at channel %d", i, ch)
			}
		}
		se := s.SE
		if se.Hidden <= 0 || len(se.Reduce) != se.Hidden*c.Out || len(se.Expand) != c.Out*se.Hidden {
			return corrupt("stage %d: squeeze-excitation shape mismatch", i)
		}
		in = c.Out
	}

	if err := a.Hidden.validate("hidden", in); err != nil {
		return err
	}
	if err := a.Output.validate("output", a.Hidden.Out); err != nil {
		return err
	}
	if a.Output.Out != len(a.Labels) {
		return corrupt("output dimension %d does not match %d labels", a.Output.Out, len(a.Labels))
	}
	return nil
}

func (d Dense) validate(name string, in int) error {
	if d.In != in || d.Out <= 0 {
		return corrupt("%s: dense %d->%d, expected input %d", name, d.In, d.Out, in)
	}
	if len(d.Weight) != d.In*d.Out || len(d.Bias) != d.Out {
		return corrupt("%s: weight %d bias %d for %d->%d", name, len(d.Weight), len(d.Bias), d.In, d.Out)
	}
	return nil
}

// NewRandomArtifact builds a valid artifact with random weights. widths are
// the four conv output channel counts; reduction sizes the SE hidden layer.
// It exists for smoke tests of the serving path without a trained model.
func NewRandomArtifact(labels []string, widths [NumStages]int, hidden, reduction int, seed int64) *Artifact {
	rng := rand.New(rand.NewSource(seed))
	randn := func(n int, scale float64) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64() * scale)
		}
		return out
	}
	fill := func(n int, v float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	a := &Artifact{
		Version: ArtifactVersion,
		Labels:  append([]string(nil), labels...),
	}

	in := 1
	for _, out := range widths {
		h := max(1, out/max(1, reduction))
		a.Stages = append(a.Stages, Stage{
			Conv: Conv{In: in, Out: out, Weight: randn(out*in*9, 0.3), Bias: randn(out, 0.05)},
			Norm: BatchNorm{Gamma: fill(out, 1), Beta: fill(out, 0), Mean: fill(out, 0), Var: fill(out, 1)},
			SE:   SqueezeExcite{Hidden: h, Reduce: randn(h*out, 0.3), Expand: randn(out*h, 0.3)},
		})
		in = out
	}

	a.Hidden = Dense{In: in, Out: hidden, Weight: randn(hidden*in, 0.3), Bias: randn(hidden, 0.05)}
	a.Output = Dense{In: hidden, Out: len(labels), Weight: randn(len(labels)*hidden, 0.3), Bias: randn(len(labels), 0.05)}
	return a
}
