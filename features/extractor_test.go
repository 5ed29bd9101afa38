package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/sonido-emotion/audio"
)

type ExtractorSuite struct {
	suite.Suite
	extractor *Extractor
}

func TestExtractorSuite(t *testing.T) {
	suite.Run(t, new(ExtractorSuite))
}

func (s *ExtractorSuite) SetupSuite() {
	e, err := NewExtractor(DefaultConfig())
	s.Require().NoError(err)
	s.extractor = e
}

func (s *ExtractorSuite) TestShapeIsFixedForAnyLength() {
	for _, n := range []int{1, 100, 2048, audio.TargetLength, audio.TargetLength * 3} {
		tensor, err := s.extractor.Extract(audio.NewBuffer(noise(n, 0.3, int64(n))))
		s.Require().NoError(err, "length %d", n)

		rows, cols := tensor.Shape()
		s.Equal(128, rows)
		s.Equal(128, cols)
		s.Len(tensor.Data, 128*128)
	}
}

func (s *ExtractorSuite) TestDeterministic() {
	samples := noise(audio.TargetLength, 0.5, 7)

	a, err := s.extractor.Extract(audio.NewBuffer(samples))
	s.Require().NoError(err)
	b, err := s.extractor.Extract(audio.NewBuffer(samples))
	s.Require().NoError(err)

	s.Equal(a.Data, b.Data)
}

func (s *ExtractorSuite) TestDoesNotModifyInput() {
	samples := noise(audio.TargetLength+10, 0.5, 3)
	before := append([]float64(nil), samples...)

	_, err := s.extractor.Extract(audio.NewBuffer(samples))
	s.Require().NoError(err)
	s.Equal(before, samples)
}

func (s *ExtractorSuite) TestAllZeroIsFinite() {
	tensor, err := s.extractor.Extract(audio.NewBuffer(make([]float64, audio.TargetLength)))
	s.Require().NoError(err)
	s.NoError(tensor.Validate())
	for _, v := range tensor.Data {
		s.Equal(float32(0), v)
	}
}

func (s *ExtractorSuite) TestNearSilentIsFinite() {
	samples := make([]float64, audio.TargetLength)
	samples[1000] = 2e-6
	samples[40000] = -3e-6

	tensor, err := s.extractor.Extract(audio.NewBuffer(samples))
	s.Require().NoError(err)
	s.NoError(tensor.Validate())
}

func (s *ExtractorSuite) TestStandardized() {
	tensor, err := s.extractor.Extract(audio.NewBuffer(tone(audio.TargetLength, 440)))
	s.Require().NoError(err)

	var sum, sumSq float64
	for _, v := range tensor.Data {
		sum += float64(v)
	}
	mean := sum / float64(len(tensor.Data))
	for _, v := range tensor.Data {
		d := float64(v) - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(tensor.Data)))

	// the 128x130 spectrogram is truncated to 128x128, so stats are close to but not exactly 0/1
	s.InDelta(0, mean, 0.1)
	s.InDelta(1, std, 0.1)
}

func (s *ExtractorSuite) TestRejectsWrongRateAndEmpty() {
	_, err := s.extractor.Extract(&audio.Buffer{Samples: []float64{0.1}, SampleRate: 44100})
	s.Error(err)

	_, err = s.extractor.Extract(audio.NewBuffer(nil))
	s.Error(err)
}

func TestTensorValidate(t *testing.T) {
	tensor := NewTensor(Rows, Cols)
	if err := tensor.Validate(); err != nil {
		t.Fatalf("zero tensor should be valid: %v", err)
	}

	tensor.Data[5] = float32(math.NaN())
	if err := tensor.Validate(); err == nil {
		t.Fatal("expected NaN to be rejected")
	}

	if err := NewTensor(64, 128).Validate(); err == nil {
		t.Fatal("expected wrong shape to be rejected")
	}
}

func noise(n int, amp float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * (2*rng.Float64() - 1)
	}
	return out
}

func tone(n int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate)
	}
	return out
}
