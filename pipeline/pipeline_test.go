package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-emotion/acquisition"
	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/features"
)

// fakeScorer favors "happy" and records every tensor it sees.
type fakeScorer struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	panics  bool
	tensors []*features.Tensor
}

func (s *fakeScorer) Labels() classifier.Labels {
	return classifier.Labels(classifier.DefaultLabels)
}

func (s *fakeScorer) Score(t *features.Tensor) classifier.Outcome {
	s.mu.Lock()
	s.calls++
	s.tensors = append(s.tensors, t)
	s.mu.Unlock()

	if s.panics {
		panic("index out of range")
	}
	if s.fail {
		return classifier.ScoringFailed{Reason: errors.New("model degraded")}
	}
	logits := make([]float64, len(classifier.DefaultLabels))
	logits[2] = 3
	return classifier.Decide(logits, s.Labels())
}

func (s *fakeScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type failingExtractor struct{}

func (failingExtractor) Extract(buf *audio.Buffer) (*features.Tensor, error) {
	return nil, errors.New("mel projection failed")
}

type fakeRemote struct {
	buf   *audio.Buffer
	err   error
	calls int
}

func (r *fakeRemote) Acquire(ctx context.Context, url string) (*acquisition.RemoteResult, error) {
	r.calls++
	if r.err != nil {
		return &acquisition.RemoteResult{Attempts: []acquisition.Attempt{{Strategy: "transcoded", Err: r.err}}}, r.err
	}
	return &acquisition.RemoteResult{
		Buffer:   r.buf,
		Info:     &acquisition.VideoInfo{ID: "abc", Duration: 12},
		Attempts: []acquisition.Attempt{{Strategy: "transcoded", State: acquisition.StateDecoded}},
	}, nil
}

type blobDecoder struct{}

func (blobDecoder) Name() string { return "stub" }

func (blobDecoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	if string(data) != "RIFF" {
		return nil, errors.New("bad header")
	}
	return audio.NewBuffer(constant(audio.SampleRate, 0.4)), nil
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func tone(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(audio.SampleRate))
	}
	return out
}

func newTestPipeline(t *testing.T, scorer *fakeScorer, opts ...func(*Options)) *Pipeline {
	t.Helper()
	extractor, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	o := Options{
		Local:        acquisition.NewLocal(blobDecoder{}),
		Extractor:    extractor,
		Scorer:       scorer,
		BatchWorkers: 2,
	}
	for _, fn := range opts {
		fn(&o)
	}
	p, err := New(o)
	require.NoError(t, err)
	return p
}

func TestNewRequiresComponents(t *testing.T) {
	extractor, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	_, err = New(Options{Scorer: &fakeScorer{}})
	assert.Error(t, err)
	_, err = New(Options{Extractor: extractor})
	assert.Error(t, err)

	p, err := New(Options{Extractor: extractor, Scorer: &fakeScorer{}})
	require.NoError(t, err)
	assert.Equal(t, classifier.Labels(classifier.DefaultLabels), p.Labels())
}

func TestSilentShortCircuit(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	inputs := [][]float64{
		make([]float64, audio.TargetLength),
		constant(1000, 5e-7),
		{0, math.NaN(), 0},
	}
	for _, samples := range inputs {
		res, err := p.Predict(context.Background(), SamplesInput{Samples: samples})
		require.NoError(t, err)
		assert.Equal(t, classifier.DefaultLabel, res.Label)
		assert.Zero(t, res.ProcessingTime)
		assert.True(t, res.Silent)
		assert.Nil(t, res.Confidence)
	}
	assert.Equal(t, 0, scorer.callCount())
}

func TestLoudInputIsScored(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	res, err := p.Predict(context.Background(), SamplesInput{Samples: constant(audio.TargetLength, 2.0)})
	require.NoError(t, err)

	assert.Equal(t, 1, scorer.callCount())
	assert.Equal(t, "happy", res.Label)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, res.Scores["happy"], *res.Confidence, 1e-12)
	assert.Len(t, res.Scores, len(classifier.DefaultLabels))
	assert.False(t, res.Silent)
	assert.False(t, res.Degraded)
	assert.Equal(t, SourceSamples, res.Source)

	r, c := scorer.tensors[0].Shape()
	assert.Equal(t, features.Rows, r)
	assert.Equal(t, features.Cols, c)
}

func TestCallerSamplesUntouched(t *testing.T) {
	p := newTestPipeline(t, &fakeScorer{})
	in := constant(100, 3.0)

	_, err := p.Predict(context.Background(), SamplesInput{Samples: in})
	require.NoError(t, err)
	assert.Equal(t, 3.0, in[0])
}

func TestEmptyInputIsClientError(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	_, err := p.Predict(context.Background(), SamplesInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrEmptyInput))
	assert.True(t, audio.IsClientInput(err))

	_, err = p.Predict(context.Background(), nil)
	assert.True(t, audio.IsClientInput(err))
	assert.Equal(t, 0, scorer.callCount())
}

func TestScoringFailureMapsToDefault(t *testing.T) {
	for _, scorer := range []*fakeScorer{{fail: true}, {panics: true}} {
		p := newTestPipeline(t, scorer)

		res, err := p.Predict(context.Background(), SamplesInput{Samples: tone(audio.TargetLength)})
		require.NoError(t, err)
		assert.Equal(t, classifier.DefaultLabel, res.Label)
		assert.Nil(t, res.Confidence)
		assert.True(t, res.Degraded)
		assert.Equal(t, 1, scorer.callCount())
	}
}

func TestExtractionFailureMapsToDefault(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer, func(o *Options) { o.Extractor = failingExtractor{} })

	res, err := p.Predict(context.Background(), SamplesInput{Samples: tone(1000)})
	require.NoError(t, err)
	assert.Equal(t, classifier.DefaultLabel, res.Label)
	assert.True(t, res.Degraded)
	assert.Equal(t, 0, scorer.callCount())
}

func TestBlobInput(t *testing.T) {
	p := newTestPipeline(t, &fakeScorer{})

	res, err := p.Predict(context.Background(), BlobInput{Data: []byte("RIFF"), ContentType: "audio/wav"})
	require.NoError(t, err)
	assert.Equal(t, "happy", res.Label)
	assert.Equal(t, SourceBlob, res.Source)

	_, err = p.Predict(context.Background(), BlobInput{Data: []byte("junk"), ContentType: "audio/wav"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrUndecodable))
	assert.True(t, audio.IsClientInput(err))
}

func TestURLInput(t *testing.T) {
	remote := &fakeRemote{buf: audio.NewBuffer(tone(audio.TargetLength))}
	p := newTestPipeline(t, &fakeScorer{}, func(o *Options) { o.Remote = remote })

	res, err := p.Predict(context.Background(), URLInput{URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	assert.Equal(t, "happy", res.Label)
	assert.Equal(t, SourceURL, res.Source)
	require.NotNil(t, res.Video)
	assert.Equal(t, "abc", res.Video.ID)
}

func TestURLFailurePropagatesTyped(t *testing.T) {
	remote := &fakeRemote{err: audio.Extraction("remote_acquire", audio.ErrExtractionFailed)}
	p := newTestPipeline(t, &fakeScorer{}, func(o *Options) { o.Remote = remote })

	_, err := p.Predict(context.Background(), URLInput{URL: "https://youtu.be/abc"})
	require.Error(t, err)
	assert.Equal(t, audio.KindExtraction, audio.KindOf(err))
	assert.True(t, errors.Is(err, audio.ErrExtractionFailed))
}

func TestURLWithoutRemote(t *testing.T) {
	p := newTestPipeline(t, &fakeScorer{})

	_, err := p.Predict(context.Background(), URLInput{URL: "https://youtu.be/abc"})
	require.Error(t, err)
	assert.Equal(t, audio.KindInternal, audio.KindOf(err))
}

func TestSilentRemoteAudio(t *testing.T) {
	scorer := &fakeScorer{}
	remote := &fakeRemote{buf: audio.NewBuffer(make([]float64, 500))}
	p := newTestPipeline(t, scorer, func(o *Options) { o.Remote = remote })

	res, err := p.Predict(context.Background(), URLInput{URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	assert.True(t, res.Silent)
	assert.Equal(t, 0, scorer.callCount())
}

func TestPredictBatch(t *testing.T) {
	p := newTestPipeline(t, &fakeScorer{})

	items := p.PredictBatch(context.Background(), []SamplesInput{
		{Samples: tone(2000)},
		{},
		{Samples: make([]float64, 10)},
		{Samples: tone(100), SampleRate: -5},
		{Samples: constant(300, 2)},
	})
	require.Len(t, items, 5)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
	}

	assert.True(t, items[0].Success)
	assert.Equal(t, "happy", items[0].Label)
	assert.NotNil(t, items[0].Confidence)

	assert.True(t, items[1].Success)
	assert.Equal(t, classifier.DefaultLabel, items[1].Label)
	assert.Equal(t, "Empty audio data", items[1].Warning)

	assert.True(t, items[2].Success)
	assert.Equal(t, classifier.DefaultLabel, items[2].Label)

	assert.False(t, items[3].Success)
	assert.Equal(t, classifier.DefaultLabel, items[3].Label)
	assert.NotEmpty(t, items[3].Error)

	assert.True(t, items[4].Success)
}

func TestPredictBatchCanceled(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := p.PredictBatch(ctx, []SamplesInput{{Samples: tone(100)}, {Samples: tone(100)}})
	for _, item := range items {
		assert.False(t, item.Success)
		assert.Equal(t, classifier.DefaultLabel, item.Label)
	}
	assert.Equal(t, 0, scorer.callCount())
	assert.Empty(t, p.PredictBatch(context.Background(), nil))
}

func TestSelfTest(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	label, err := p.SelfTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "happy", label)
	assert.Equal(t, 1, scorer.callCount(), "self-test must bypass the silent shortcut")

	broken := newTestPipeline(t, &fakeScorer{fail: true})
	_, err = broken.SelfTest(context.Background())
	assert.Error(t, err)
}

func TestConcurrentPredict(t *testing.T) {
	scorer := &fakeScorer{}
	p := newTestPipeline(t, scorer)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Predict(context.Background(), SamplesInput{Samples: tone(4000)})
			assert.NoError(t, err)
			assert.Equal(t, "happy", res.Label)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, scorer.callCount())
}

func TestShortClipAtDeclaredRateIsAccepted(t *testing.T) {
	p := newTestPipeline(t, &fakeScorer{})

	res, err := p.Predict(context.Background(), SamplesInput{Samples: constant(200, 0.5), SampleRate: 44100})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Label)
}
