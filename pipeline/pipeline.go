// Package pipeline wires acquisition, validation, feature extraction and
// scoring into a single prediction call.
//
// Validation and acquisition failures are returned as typed *audio.Error
// values. Silence, extraction faults and scoring faults are not errors: each
// yields the default label.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-emotion/acquisition"
	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/metrics"
)

// LocalAcquirer turns in-process inputs into buffers. *acquisition.Local
// implements it.
type LocalAcquirer interface {
	FromSamples(samples []float64, declaredRate int) (*audio.Buffer, error)
	FromBlob(ctx context.Context, data []byte, contentType string) (*audio.Buffer, error)
}

// RemoteAcquirer fetches audio for a URL. *acquisition.Remote implements it.
type RemoteAcquirer interface {
	Acquire(ctx context.Context, url string) (*acquisition.RemoteResult, error)
}

// FeatureExtractor turns a validated buffer into a model input.
type FeatureExtractor interface {
	Extract(buf *audio.Buffer) (*features.Tensor, error)
}

var errRemoteDisabled = errors.New("remote acquisition not configured")

// Options configures a Pipeline. Extractor and Scorer are required.
type Options struct {
	Local        LocalAcquirer
	Remote       RemoteAcquirer
	Extractor    FeatureExtractor
	Scorer       classifier.Scorer
	BatchWorkers int // 0 uses runtime.NumCPU
}

// Pipeline is safe for concurrent use. It holds no per-request state.
type Pipeline struct {
	local     LocalAcquirer
	remote    RemoteAcquirer
	extractor FeatureExtractor
	scorer    classifier.Scorer
	labels    classifier.Labels
	workers   int
	logger    logging.Logger
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}

	labels := opts.Scorer.Labels()
	if len(labels) == 0 {
		return nil, fmt.Errorf("scorer has an empty label set")
	}
	if !labels.Contains(classifier.DefaultLabel) {
		return nil, fmt.Errorf("label set does not contain default label %q", classifier.DefaultLabel)
	}

	local := opts.Local
	if local == nil {
		local = acquisition.NewLocal()
	}

	workers := opts.BatchWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pipeline{
		local:     local,
		remote:    opts.Remote,
		extractor: opts.Extractor,
		scorer:    opts.Scorer,
		labels:    labels.Clone(),
		workers:   workers,
		logger: logging.WithFields(logging.Fields{
			"component": "pipeline",
		}),
	}, nil
}

// Labels returns the label set of the loaded scorer.
func (p *Pipeline) Labels() classifier.Labels {
	return p.labels.Clone()
}

// Predict runs one input end to end.
func (p *Pipeline) Predict(ctx context.Context, in Input) (*Result, error) {
	if in == nil {
		return nil, audio.ClientInput("predict", fmt.Errorf("no input"))
	}
	src := in.source()
	logger := p.logger.WithFields(logging.Fields{
		"function": "Predict",
		"source":   string(src),
	}).WithContext(ctx)

	metrics.InFlightPredictions.Inc()
	defer metrics.InFlightPredictions.Dec()

	start := time.Now()
	buf, video, err := p.acquire(ctx, in)
	metrics.StageLatency.WithLabelValues("acquire").Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := metrics.OutcomeError
		if audio.IsClientInput(err) {
			outcome = metrics.OutcomeRejected
		}
		metrics.PredictionsTotal.WithLabelValues(string(src), outcome).Inc()
		logger.Warn("Acquisition failed", logging.Fields{
			"kind":  audio.KindOf(err).String(),
			"error": err.Error(),
		})
		return nil, err
	}

	result, err := p.infer(buf, src, logger)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues(string(src), metrics.OutcomeRejected).Inc()
		return nil, err
	}
	result.Video = video
	return result, nil
}

func (p *Pipeline) acquire(ctx context.Context, in Input) (*audio.Buffer, *acquisition.VideoInfo, error) {
	switch v := in.(type) {
	case SamplesInput:
		buf, err := p.local.FromSamples(v.Samples, v.SampleRate)
		return buf, nil, err
	case BlobInput:
		buf, err := p.local.FromBlob(ctx, v.Data, v.ContentType)
		return buf, nil, err
	case URLInput:
		if p.remote == nil {
			return nil, nil, audio.NewError(audio.KindInternal, "remote_acquire", errRemoteDisabled)
		}
		res, err := p.remote.Acquire(ctx, v.URL)
		if res != nil {
			for _, a := range res.Attempts {
				result := "ok"
				if a.Err != nil {
					result = "failed"
				}
				metrics.AcquisitionAttemptsTotal.WithLabelValues(a.Strategy, result).Inc()
			}
		}
		if err != nil {
			return nil, nil, err
		}
		return res.Buffer, res.Info, nil
	default:
		return nil, nil, audio.ClientInput("predict", fmt.Errorf("unsupported input %T", in))
	}
}

// infer validates buf in place, then extracts and scores it.
func (p *Pipeline) infer(buf *audio.Buffer, src Source, logger logging.Logger) (*Result, error) {
	if buf == nil {
		return nil, audio.ClientInput("validate", audio.ErrEmptyInput)
	}

	report, err := audio.Validate(buf.Samples)
	if err != nil {
		return nil, err
	}
	if report.NaNs > 0 || report.Infs > 0 || report.Rescaled {
		logger.Info("Audio repaired", logging.Fields{
			"nans":     report.NaNs,
			"infs":     report.Infs,
			"rescaled": report.Rescaled,
			"peak":     report.Peak,
		})
	}

	if report.Silent {
		logger.Info("Audio is silent, returning default label", logging.Fields{"peak": report.Peak})
		metrics.PredictionsTotal.WithLabelValues(string(src), metrics.OutcomeSilent).Inc()
		return &Result{Label: classifier.DefaultLabel, Source: src, Silent: true}, nil
	}

	start := time.Now()
	tensor, err := p.extractor.Extract(buf)
	metrics.StageLatency.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error(err, "Feature extraction failed, returning default label")
		metrics.PredictionsTotal.WithLabelValues(string(src), metrics.OutcomeExtractFailed).Inc()
		return &Result{
			Label:          classifier.DefaultLabel,
			ProcessingTime: time.Since(start),
			Source:         src,
			Degraded:       true,
		}, nil
	}

	scoreStart := time.Now()
	outcome := p.score(tensor)
	metrics.StageLatency.WithLabelValues("score").Observe(time.Since(scoreStart).Seconds())
	elapsed := time.Since(start)

	switch o := outcome.(type) {
	case classifier.Scored:
		confidence := o.Confidence
		scores := make(map[string]float64, len(o.Probabilities))
		for i, prob := range o.Probabilities {
			if i < len(p.labels) {
				scores[p.labels[i]] = prob
			}
		}

		metrics.PredictionsTotal.WithLabelValues(string(src), metrics.OutcomeScored).Inc()
		metrics.LabelsTotal.WithLabelValues(o.Label).Inc()
		logger.Info("Emotion predicted", logging.Fields{
			"label":              o.Label,
			"confidence":         confidence,
			"processing_time_ms": elapsed.Milliseconds(),
		})

		return &Result{
			Label:          o.Label,
			Confidence:     &confidence,
			ProcessingTime: elapsed,
			Source:         src,
			Scores:         scores,
		}, nil

	case classifier.ScoringFailed:
		logger.Error(o, "Scoring failed, returning default label")
	default:
		logger.Error(fmt.Errorf("unexpected outcome %T", outcome), "Scoring failed, returning default label")
	}

	metrics.PredictionsTotal.WithLabelValues(string(src), metrics.OutcomeScoringFailed).Inc()
	return &Result{
		Label:          classifier.DefaultLabel,
		ProcessingTime: elapsed,
		Source:         src,
		Degraded:       true,
	}, nil
}

// score never panics, whatever the Scorer does.
func (p *Pipeline) score(t *features.Tensor) (out classifier.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = classifier.ScoringFailed{Reason: fmt.Errorf("scorer panic: %v", r)}
		}
	}()
	out = p.scorer.Score(t)
	if out == nil {
		return classifier.ScoringFailed{Reason: errors.New("scorer returned no outcome")}
	}
	return out
}

// PredictBatch scores raw sample inputs with a bounded worker pool. Results
// keep input order. Empty entries yield the default label with a warning and
// failures yield the default label with Success false.
func (p *Pipeline) PredictBatch(ctx context.Context, inputs []SamplesInput) []BatchItem {
	items := make([]BatchItem, len(inputs))
	if len(inputs) == 0 {
		return items
	}

	numWorkers := max(1, min(p.workers, len(inputs)))
	jobs := make(chan int, len(inputs))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = p.predictItem(ctx, i, inputs[i])
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.logger.Debug("Batch complete", logging.Fields{
		"function": "PredictBatch",
		"items":    len(inputs),
		"workers":  numWorkers,
	})
	return items
}

func (p *Pipeline) predictItem(ctx context.Context, index int, in SamplesInput) BatchItem {
	item := BatchItem{Index: index, Label: classifier.DefaultLabel}

	if len(in.Samples) == 0 {
		item.Success = true
		item.Warning = "Empty audio data"
		return item
	}
	if err := ctx.Err(); err != nil {
		item.Error = err.Error()
		return item
	}

	res, err := p.Predict(ctx, in)
	if err != nil {
		p.logger.Warn("Batch item failed", logging.Fields{"index": index, "error": err.Error()})
		item.Error = err.Error()
		return item
	}

	item.Label = res.Label
	item.Confidence = res.Confidence
	item.Success = true
	return item
}

// SelfTest pushes a silent clip through extraction and scoring, skipping the
// silent shortcut, to prove the model is callable. It returns the label the
// model produced.
func (p *Pipeline) SelfTest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf := audio.NewBuffer(make([]float64, audio.TargetLength))
	tensor, err := p.extractor.Extract(buf)
	if err != nil {
		return "", fmt.Errorf("self-test extraction failed: %w", err)
	}

	switch o := p.score(tensor).(type) {
	case classifier.Scored:
		return o.Label, nil
	case classifier.ScoringFailed:
		return "", fmt.Errorf("self-test: %w", o)
	default:
		return "", fmt.Errorf("self-test: unexpected outcome %T", o)
	}
}
