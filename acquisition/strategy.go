package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/sonido-emotion/audio"
)

// State is how far an attempt progressed.
type State int

const (
	StateURLValidated State = iota
	StateMetadataFetched
	StateDurationChecked
	StateDownloaded
	StateDecoded
)

func (s State) String() string {
	switch s {
	case StateURLValidated:
		return "url_validated"
	case StateMetadataFetched:
		return "metadata_fetched"
	case StateDurationChecked:
		return "duration_checked"
	case StateDownloaded:
		return "downloaded"
	case StateDecoded:
		return "decoded"
	default:
		return "unknown"
	}
}

// Attempt records one strategy's outcome for diagnostics.
type Attempt struct {
	Strategy string
	State    State
	Err      error
	Files    []string // candidate files the strategy tried to decode
}

// Job is what a strategy works with. baseDir is where the preferred strategy
// wrote its output; later strategies may inspect it.
type Job struct {
	URL       string
	Workspace *Workspace
	Runner    Runner
	Decoders  []FileDecoder

	baseDir string
}

// Strategy is one way to turn a URL into audio.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, job *Job, attempt *Attempt) (*audio.Buffer, error)
}

const (
	outputBase     = "audio"
	outputTemplate = outputBase + ".%(ext)s"

	FormatPreferred = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"
	FormatSimple    = "bestaudio/best"
)

var (
	errNoOutput       = errors.New("no output file produced")
	errNoBaseDownload = errors.New("preferred download never ran")
)

// DefaultStrategies returns transcoded, sibling-scan, direct.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Transcoded{},
		SiblingScan{Extensions: []string{".webm", ".m4a", ".mp3", ".opus"}},
		Direct{Extensions: []string{".webm", ".m4a", ".mp4", ".opus"}},
	}
}

// Transcoded downloads the best audio track and has yt-dlp convert it to WAV
// at the pipeline rate.
type Transcoded struct{}

func (Transcoded) Name() string { return "transcoded" }

func (Transcoded) Acquire(ctx context.Context, job *Job, attempt *Attempt) (*audio.Buffer, error) {
	dir, err := job.Workspace.NewDir("transcoded")
	if err != nil {
		return nil, err
	}
	job.baseDir = dir

	err = job.Runner.Download(ctx, job.URL, DownloadOptions{
		Format:            FormatPreferred,
		OutputTemplate:    filepath.Join(dir, outputTemplate),
		ExtractAudio:      true,
		AudioFormat:       "wav",
		PostprocessorArgs: fmt.Sprintf("ExtractAudio+ffmpeg_o:-ar %d", audio.SampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	attempt.State = StateDownloaded

	return scan(ctx, job, attempt, dir, []string{".wav"})
}

// SiblingScan decodes files the post-processor may have left under other
// extensions when the WAV is missing or unreadable.
type SiblingScan struct {
	Extensions []string
}

func (SiblingScan) Name() string { return "sibling-scan" }

func (s SiblingScan) Acquire(ctx context.Context, job *Job, attempt *Attempt) (*audio.Buffer, error) {
	if job.baseDir == "" {
		return nil, errNoBaseDownload
	}
	return scan(ctx, job, attempt, job.baseDir, s.Extensions)
}

// Direct downloads "best audio or best" into a fresh directory with no
// post-processing.
type Direct struct {
	Extensions []string
}

func (Direct) Name() string { return "direct" }

func (d Direct) Acquire(ctx context.Context, job *Job, attempt *Attempt) (*audio.Buffer, error) {
	dir, err := job.Workspace.NewDir("direct")
	if err != nil {
		return nil, err
	}

	err = job.Runner.Download(ctx, job.URL, DownloadOptions{
		Format:         FormatSimple,
		OutputTemplate: filepath.Join(dir, outputTemplate),
	})
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	attempt.State = StateDownloaded

	return scan(ctx, job, attempt, dir, d.Extensions)
}

// scan decodes dir/audio<ext> for each extension in order and returns the
// first non-empty buffer.
func scan(ctx context.Context, job *Job, attempt *Attempt, dir string, exts []string) (*audio.Buffer, error) {
	var errs []error
	for _, ext := range exts {
		path := filepath.Join(dir, outputBase+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		attempt.Files = append(attempt.Files, path)

		buf, err := decodeFile(ctx, job.Decoders, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		attempt.State = StateDecoded
		return buf, nil
	}

	if len(errs) == 0 {
		return nil, errNoOutput
	}
	return nil, errors.Join(errs...)
}

// decodeFile tries each decoder and rejects empty results.
func decodeFile(ctx context.Context, decoders []FileDecoder, path string) (*audio.Buffer, error) {
	var errs []error
	for _, d := range decoders {
		buf, err := d.DecodeFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		if buf.Len() == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), audio.ErrEmptyDecode))
			continue
		}
		return buf, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("no decoders configured")
	}
	return nil, errors.Join(errs...)
}
