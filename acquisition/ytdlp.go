package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/RyanBlaney/sonido-emotion/logging"
)

// VideoInfo is the subset of yt-dlp metadata the pipeline reads.
type VideoInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"` // seconds, 0 when unknown
	Uploader  string  `json:"uploader"`
	Extractor string  `json:"extractor"`
}

// DownloadOptions selects the format and output location of one download.
type DownloadOptions struct {
	Format            string
	OutputTemplate    string // yt-dlp -o template, e.g. dir/audio.%(ext)s
	ExtractAudio      bool
	AudioFormat       string
	PostprocessorArgs string
}

// Runner fetches remote media. YTDLP is the production implementation.
type Runner interface {
	Metadata(ctx context.Context, url string) (*VideoInfo, error)
	Download(ctx context.Context, url string, opts DownloadOptions) error
}

// YTDLP runs the yt-dlp binary.
type YTDLP struct {
	Path string
}

// NewYTDLP returns a runner for the binary at path ("yt-dlp" when empty).
func NewYTDLP(path string) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	return &YTDLP{Path: path}
}

// Metadata runs yt-dlp without downloading and decodes its JSON.
func (y *YTDLP) Metadata(ctx context.Context, url string) (*VideoInfo, error) {
	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings", url}

	output, err := y.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var info VideoInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
	}
	return &info, nil
}

// Download fetches url according to opts.
func (y *YTDLP) Download(ctx context.Context, url string, opts DownloadOptions) error {
	_, err := y.run(ctx, downloadArgs(url, opts))
	return err
}

func downloadArgs(url string, opts DownloadOptions) []string {
	args := []string{"--quiet", "--no-warnings", "--no-playlist", "-f", opts.Format, "-o", opts.OutputTemplate}
	if opts.ExtractAudio {
		args = append(args, "-x", "--audio-format", opts.AudioFormat, "--audio-quality", "0")
		if opts.PostprocessorArgs != "" {
			args = append(args, "--postprocessor-args", opts.PostprocessorArgs)
		}
	}
	return append(args, url)
}

func (y *YTDLP) run(ctx context.Context, args []string) ([]byte, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "ytdlp",
		"function":  "run",
	})

	logger.Debug("Running yt-dlp", logging.Fields{"args": strings.Join(args, " ")})

	output, err := exec.CommandContext(ctx, y.Path, args...).Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	return output, nil
}
