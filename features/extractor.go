// Package features turns a clip into the fixed 128x128 standardized
// log-mel tensor the classifier consumes.
package features

import (
	"fmt"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
	"github.com/RyanBlaney/sonido-emotion/algorithms/spectral"
	"github.com/RyanBlaney/sonido-emotion/algorithms/windowing"
	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

const (
	// Rows and Cols are the tensor shape the classifier was trained on.
	Rows = 128
	Cols = 128
)

// Config holds the spectrogram parameters.
type Config struct {
	SampleRate   int
	TargetLength int
	NFFT         int
	HopSize      int
	NumMels      int
	FMin         float64
	FMax         float64 // 0 means SampleRate/2
	TopDB        float64
	Amin         float64
	Epsilon      float64 // added to std when standardizing
}

// DefaultConfig returns the parameters the pre-trained network expects.
func DefaultConfig() Config {
	return Config{
		SampleRate:   audio.SampleRate,
		TargetLength: audio.TargetLength,
		NFFT:         2048,
		HopSize:      512,
		NumMels:      128,
		FMin:         0,
		FMax:         0,
		TopDB:        80,
		Amin:         1e-10,
		Epsilon:      1e-8,
	}
}

// Extractor computes feature tensors. The window and filter bank are built
// once, so one Extractor is shared by every request.
type Extractor struct {
	cfg    Config
	stft   *spectral.STFT
	bank   spectral.FilterBank
	logger logging.Logger
}

// NewExtractor precomputes the window and mel filter bank for cfg.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.TargetLength <= 0 {
		return nil, fmt.Errorf("target length must be positive")
	}
	fmax := cfg.FMax
	if fmax == 0 {
		fmax = float64(cfg.SampleRate) / 2
	}

	stft, err := spectral.NewSTFT(cfg.NFFT, cfg.HopSize, windowing.NewPeriodicHann(cfg.NFFT), true)
	if err != nil {
		return nil, fmt.Errorf("failed to create STFT: %w", err)
	}

	bank, err := spectral.NewMelScale().CreateMelFilterBank(cfg.NumMels, cfg.NFFT, cfg.SampleRate, cfg.FMin, fmax)
	if err != nil {
		return nil, fmt.Errorf("failed to create mel filter bank: %w", err)
	}

	return &Extractor{
		cfg:  cfg,
		stft: stft,
		bank: bank,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}, nil
}

// Extract length-normalizes buf to TargetLength samples and returns the
// standardized log-mel tensor. It does not modify buf.
func (e *Extractor) Extract(buf *audio.Buffer) (*Tensor, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, fmt.Errorf("empty audio buffer")
	}
	if buf.SampleRate != 0 && buf.SampleRate != e.cfg.SampleRate {
		return nil, fmt.Errorf("buffer sample rate %d, extractor expects %d", buf.SampleRate, e.cfg.SampleRate)
	}

	samples := audio.PadOrTruncate(buf.Samples, e.cfg.TargetLength)

	spec, err := e.stft.Power(samples)
	if err != nil {
		return nil, fmt.Errorf("stft failed: %w", err)
	}

	mel, err := e.bank.Apply(spec)
	if err != nil {
		return nil, fmt.Errorf("mel projection failed: %w", err)
	}

	db := spectral.PowerToDB(mel, spectral.DBConfig{Amin: e.cfg.Amin, TopDB: e.cfg.TopDB})
	standardized := common.Standardize(common.Flatten(db), e.cfg.Epsilon)

	grid := common.ResizeCyclic(standardized, Rows, Cols)
	tensor := NewTensor(Rows, Cols)
	for r, row := range grid {
		for c, v := range row {
			tensor.Data[r*Cols+c] = float32(v)
		}
	}

	if err := tensor.Validate(); err != nil {
		return nil, err
	}

	e.logger.Debug("features extracted", logging.Fields{
		"mel_bands": len(mel),
		"frames":    spec.TimeFrames,
	})

	return tensor, nil
}

// Config returns the extractor's parameters.
func (e *Extractor) Config() Config {
	return e.cfg
}
