package native

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

type wavFormat struct{}

func (wavFormat) Name() string { return "wav" }

func (wavFormat) Sniff(h []byte) bool {
	return len(h) >= 12 && bytes.Equal(h[0:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE"))
}

func (wavFormat) Decode(r io.ReadSeeker) (*pcm, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if decoder.BitDepth == 0 {
		return nil, fmt.Errorf("missing bit depth")
	}

	maxVal := float64(int(1) << uint(decoder.BitDepth-1))
	samples := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float64(s) / maxVal
	}

	return &pcm{
		samples:    samples,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
	}, nil
}

type flacFormat struct{}

func (flacFormat) Name() string { return "flac" }

func (flacFormat) Sniff(h []byte) bool {
	return len(h) >= 4 && bytes.Equal(h[0:4], []byte("fLaC"))
}

// Decode keeps only the first subframe of every frame; callers want channel 0.
func (flacFormat) Decode(r io.ReadSeeker) (*pcm, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.BitsPerSample == 0 {
		return nil, fmt.Errorf("missing FLAC stream info")
	}
	maxVal := float64(int(1) << uint(info.BitsPerSample-1))

	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}
		for _, s := range frame.Subframes[0].Samples {
			samples = append(samples, float64(s)/maxVal)
		}
	}

	return &pcm{samples: samples, sampleRate: int(info.SampleRate), channels: 1}, nil
}

type vorbisFormat struct{}

func (vorbisFormat) Name() string { return "vorbis" }

func (vorbisFormat) Sniff(h []byte) bool {
	return len(h) >= 4 && bytes.Equal(h[0:4], []byte("OggS"))
}

func (vorbisFormat) Decode(r io.ReadSeeker) (*pcm, error) {
	decoder, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create OGG decoder: %w", err)
	}

	var samples []float64
	chunk := make([]float32, 16384)
	for {
		n, err := decoder.Read(chunk)
		for _, s := range chunk[:n] {
			samples = append(samples, float64(s))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read OGG data: %w", err)
		}
	}

	return &pcm{samples: samples, sampleRate: decoder.SampleRate(), channels: decoder.Channels()}, nil
}

type mp3Format struct{}

func (mp3Format) Name() string { return "mp3" }

// Sniff accepts an ID3v2 tag or a bare MPEG frame sync.
func (mp3Format) Sniff(h []byte) bool {
	if len(h) >= 3 && bytes.Equal(h[0:3], []byte("ID3")) {
		return true
	}
	return len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0
}

// Decode relies on go-mp3 always emitting 16-bit little-endian stereo.
func (mp3Format) Decode(r io.ReadSeeker) (*pcm, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("creating MP3 decoder: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}

	const channels = 2
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}

	return &pcm{samples: samples, sampleRate: decoder.SampleRate(), channels: channels}, nil
}
