package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/RyanBlaney/sonido-emotion/acquisition"
	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/classifier/onnx"
	"github.com/RyanBlaney/sonido-emotion/config"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/metrics"
	"github.com/RyanBlaney/sonido-emotion/pipeline"
	"github.com/RyanBlaney/sonido-emotion/transcode"
	"github.com/RyanBlaney/sonido-emotion/transcode/native"
)

// app is everything a command needs to run predictions.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logging.Warn("Close failed", logging.Fields{"error": err.Error()})
		}
	}
}

// loadScorer opens the configured model. Any error here is fatal for the
// process.
func loadScorer(cfg *config.Config) (classifier.Scorer, io.Closer, error) {
	switch cfg.Model.Backend {
	case "onnx":
		oc := onnx.DefaultConfig()
		oc.ModelPath = cfg.Model.ArtifactPath
		oc.SharedLibraryPath = cfg.Model.ONNXLibraryPath
		oc.Labels = cfg.Model.Labels
		s, err := onnx.New(oc)
		if err != nil {
			return nil, nil, fmt.Errorf("load onnx model: %w", err)
		}
		return s, s, nil
	default:
		m, err := classifier.Load(cfg.Model.ArtifactPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load model: %w", err)
		}
		return m, nil, nil
	}
}

// newFFmpegDecoder builds the primary decoder. A bad decoder config is fatal;
// a missing ffmpeg is only logged because the native decoder still serves
// WAV, FLAC, MP3 and Ogg uploads.
func newFFmpegDecoder(ctx context.Context, cfg *config.Config) (*transcode.Decoder, error) {
	dc := transcode.DefaultDecoderConfig()
	dc.FFmpegPath = cfg.Decoder.FFmpegPath
	dc.FFprobePath = cfg.Decoder.FFprobePath
	dc.Timeout = cfg.Decoder.Timeout()
	dc.ResampleQuality = cfg.Decoder.ResampleQuality
	dc.MaxDuration = cfg.Decoder.MaxDecode()

	d := transcode.NewDecoder(dc)
	if err := d.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid decoder config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.CheckAvailability(ctx); err != nil {
		logging.Warn("ffmpeg unavailable, falling back to native decoding", logging.Fields{
			"component": "bootstrap",
			"error":     err.Error(),
		})
	}
	return d, nil
}

// newApp wires decoders, acquisition, feature extraction and the model.
func newApp(cfg *config.Config) (*app, error) {
	logger := logging.WithFields(logging.Fields{"component": "bootstrap"})

	scorer, closer, err := loadScorer(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	extractor, err := features.NewExtractor(features.DefaultConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create feature extractor: %w", err)
	}

	ffmpeg, err := newFFmpegDecoder(context.Background(), cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	pure := native.NewDecoder()

	remote := acquisition.NewRemote(
		acquisition.NewYTDLP(cfg.Remote.YTDLPPath),
		[]acquisition.FileDecoder{ffmpeg, pure},
		acquisition.RemoteConfig{
			MaxDuration: cfg.Remote.MaxDuration(),
			Timeout:     cfg.Remote.Timeout(),
			TempDir:     cfg.Remote.TempDir,
		},
	)

	local := acquisition.NewLocal(ffmpeg, pure)
	local.TempDir = cfg.Remote.TempDir

	p, err := pipeline.New(pipeline.Options{
		Local:        local,
		Remote:       remote,
		Extractor:    extractor,
		Scorer:       scorer,
		BatchWorkers: cfg.Server.BatchWorkers,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p

	metrics.ModelLoaded.Set(1)
	logger.Info("Model loaded", logging.Fields{
		"backend":  cfg.Model.Backend,
		"artifact": cfg.Model.ArtifactPath,
		"labels":   len(scorer.Labels()),
	})
	return a, nil
}
