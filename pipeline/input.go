package pipeline

import (
	"time"

	"github.com/RyanBlaney/sonido-emotion/acquisition"
)

// Source names where a prediction's audio came from.
type Source string

const (
	SourceSamples Source = "samples"
	SourceBlob    Source = "file"
	SourceURL     Source = "youtube"
)

// Input is one of SamplesInput, BlobInput or URLInput.
type Input interface {
	source() Source
}

// SamplesInput is raw PCM. SampleRate 0 means the samples are already at the
// pipeline rate.
type SamplesInput struct {
	Samples    []float64
	SampleRate int
}

// BlobInput is an uploaded file in an unknown container.
type BlobInput struct {
	Data        []byte
	ContentType string
}

// URLInput is a remote video URL.
type URLInput struct {
	URL string
}

func (SamplesInput) source() Source { return SourceSamples }
func (BlobInput) source() Source    { return SourceBlob }
func (URLInput) source() Source     { return SourceURL }

// Result is the outcome of one prediction.
type Result struct {
	Label string
	// Confidence is the softmax probability of Label. Nil when the label is
	// the default substituted for silence or a failure.
	Confidence     *float64
	ProcessingTime time.Duration // extraction plus scoring; 0 on the silent path
	Source         Source
	Scores         map[string]float64
	Silent         bool
	Degraded       bool                   // a fault was masked by the default label
	Video          *acquisition.VideoInfo // remote inputs only
}

// BatchItem is the per-entry result of PredictBatch.
type BatchItem struct {
	Index      int
	Label      string
	Confidence *float64
	Success    bool
	Warning    string
	Error      string
}
