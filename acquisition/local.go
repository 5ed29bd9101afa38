// Package acquisition produces audio buffers from raw samples, uploaded
// blobs and remote video URLs.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

// BlobDecoder decodes an in-memory container to mono PCM at the pipeline rate.
type BlobDecoder interface {
	Name() string
	DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error)
}

// FileDecoder decodes a file on disk to mono PCM at the pipeline rate.
type FileDecoder interface {
	Name() string
	DecodeFile(ctx context.Context, path string) (*audio.Buffer, error)
}

// Decoder is both. transcode.Decoder and native.Decoder implement it.
type Decoder interface {
	BlobDecoder
	FileDecoder
}

// Local acquires audio handed to us directly.
type Local struct {
	decoders []BlobDecoder

	// TempDir is the parent of the per-upload workspace (os.TempDir when
	// empty). Decoders that also implement FileDecoder read the upload from a
	// file there, since some containers cannot be demuxed from a pipe.
	TempDir string
}

// NewLocal tries decoders in order for blobs.
func NewLocal(decoders ...BlobDecoder) *Local {
	return &Local{decoders: decoders}
}

// FromSamples wraps caller samples in a buffer at the pipeline rate.
// declaredRate 0 means the samples are already at audio.SampleRate; any other
// rate is resampled. The caller's slice is copied.
func (l *Local) FromSamples(samples []float64, declaredRate int) (*audio.Buffer, error) {
	if len(samples) == 0 {
		return nil, audio.ClientInput("from_samples", audio.ErrEmptyInput)
	}
	if declaredRate < 0 {
		return nil, audio.ClientInput("from_samples", fmt.Errorf("invalid sample rate %d", declaredRate))
	}

	own := append([]float64(nil), samples...)
	// the resampler's filters would smear NaN and Inf across the clip
	audio.RepairNonFinite(own)
	buf, err := audio.ToTarget(&audio.Buffer{Samples: own, SampleRate: declaredRate})
	if err != nil {
		return nil, audio.NewError(audio.KindInternal, "resample", err)
	}
	return buf, nil
}

// FromBlob decodes an uploaded file. contentType must be empty or audio/*.
func (l *Local) FromBlob(ctx context.Context, data []byte, contentType string) (*audio.Buffer, error) {
	logger := logging.WithFields(logging.Fields{
		"component":    "local_acquisition",
		"function":     "FromBlob",
		"size":         len(data),
		"content_type": contentType,
	}).WithContext(ctx)

	if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "audio/") {
		return nil, audio.ClientInput("from_blob", audio.ErrUnsupportedContentType)
	}
	if len(data) == 0 {
		return nil, audio.ClientInput("from_blob", audio.ErrEmptyInput)
	}

	ws, path, err := l.spill(data, contentType)
	if err != nil {
		return nil, audio.NewError(audio.KindInternal, "from_blob", err)
	}
	if ws != nil {
		defer ws.Close()
	}

	var (
		errs      []error
		emptyFrom []string
	)
	for _, d := range l.decoders {
		buf, err := decodeOne(ctx, d, data, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, audio.Transient("decode", ctxErr)
			}
			logger.Debug("Decoder failed", logging.Fields{"decoder": d.Name(), "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		if buf.Len() == 0 {
			logger.Debug("Decoder produced no samples", logging.Fields{"decoder": d.Name()})
			emptyFrom = append(emptyFrom, d.Name())
			continue
		}

		logger.Debug("Blob decoded", logging.Fields{"decoder": d.Name(), "samples": buf.Len()})
		return buf, nil
	}

	if len(emptyFrom) > 0 {
		logger.Warn("Decoded audio is empty", logging.Fields{"decoders": emptyFrom})
		return nil, audio.ClientInput("decode", audio.ErrEmptyDecode)
	}
	logger.Warn("All decoders failed", logging.Fields{"error": fmt.Sprint(errors.Join(errs...))})
	return nil, audio.ClientInput("decode", audio.ErrUndecodable)
}

// spill writes the upload into a fresh workspace when some decoder reads
// files. It returns a nil workspace when none does.
func (l *Local) spill(data []byte, contentType string) (*Workspace, string, error) {
	needsFile := false
	for _, d := range l.decoders {
		if _, ok := d.(FileDecoder); ok {
			needsFile = true
			break
		}
	}
	if !needsFile {
		return nil, "", nil
	}

	ws, err := NewWorkspace(l.TempDir, "sonido-upload-*")
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(ws.Root(), "upload"+uploadExt(contentType))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		ws.Close()
		return nil, "", fmt.Errorf("failed to write upload: %w", err)
	}
	return ws, path, nil
}

func decodeOne(ctx context.Context, d BlobDecoder, data []byte, path string) (*audio.Buffer, error) {
	if fd, ok := d.(FileDecoder); ok && path != "" {
		return fd.DecodeFile(ctx, path)
	}
	return d.DecodeBytes(ctx, data)
}

// uploadExt guesses a file extension so tools that look at names see one.
func uploadExt(contentType string) string {
	if contentType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
