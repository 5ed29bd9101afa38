// Package native decodes common audio containers in pure Go. It is the
// fallback when ffmpeg is missing or rejects a blob.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

// ErrUnknownFormat is returned when no registered format claims the header.
var ErrUnknownFormat = errors.New("unrecognized audio container")

// pcm is decoded interleaved audio normalized to [-1, 1].
type pcm struct {
	samples    []float64
	sampleRate int
	channels   int
}

// format decodes one container type.
type format interface {
	Name() string
	Sniff(header []byte) bool
	Decode(r io.ReadSeeker) (*pcm, error)
}

// Decoder tries each registered format whose signature matches.
type Decoder struct {
	formats    []format
	targetRate int
}

// NewDecoder registers WAV, FLAC, Ogg Vorbis and MP3, in that order.
func NewDecoder() *Decoder {
	return &Decoder{
		formats:    []format{wavFormat{}, flacFormat{}, vorbisFormat{}, mp3Format{}},
		targetRate: audio.SampleRate,
	}
}

// Name identifies the decoder in logs and attempt records.
func (d *Decoder) Name() string {
	return "native"
}

// SupportedFormats lists the registered container names.
func (d *Decoder) SupportedFormats() []string {
	names := make([]string, len(d.formats))
	for i, f := range d.formats {
		names[i] = f.Name()
	}
	return names
}

// DecodeBytes sniffs the container, decodes it, keeps the first channel and
// resamples to the pipeline rate.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "native_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header := data[:min(len(data), 16)]
	for _, f := range d.formats {
		if !f.Sniff(header) {
			continue
		}

		decoded, err := f.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s decode failed: %w", f.Name(), err)
		}
		if decoded.channels <= 0 || decoded.sampleRate <= 0 {
			return nil, fmt.Errorf("%s: invalid stream format (%d ch, %d Hz)", f.Name(), decoded.channels, decoded.sampleRate)
		}

		mono := audio.FirstChannel(decoded.samples, decoded.channels)
		resampled, err := audio.Resample(mono, decoded.sampleRate, d.targetRate)
		if err != nil {
			return nil, err
		}

		logger.Debug("Native decode completed", logging.Fields{
			"format":            f.Name(),
			"input_sample_rate": decoded.sampleRate,
			"input_channels":    decoded.channels,
			"output_samples":    len(resampled),
		})

		return &audio.Buffer{Samples: resampled, SampleRate: d.targetRate}, nil
	}

	return nil, ErrUnknownFormat
}

// DecodeFile reads path and decodes it with DecodeBytes.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*audio.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return d.DecodeBytes(ctx, data)
}
