package acquisition

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

// VideoURLPattern matches the video hosts the remote path accepts.
var VideoURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)

// RemoteConfig bounds remote acquisition.
type RemoteConfig struct {
	MaxDuration time.Duration // longer videos are rejected before download
	Timeout     time.Duration // wraps the whole remote phase; 0 disables
	TempDir     string        // parent of per-request workspaces; "" uses os.TempDir
}

// DefaultRemoteConfig returns a 10 minute cap and a 2 minute timeout.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		MaxDuration: 600 * time.Second,
		Timeout:     2 * time.Minute,
	}
}

// RemoteResult is a decoded remote clip plus what it took to get it.
type RemoteResult struct {
	Buffer   *audio.Buffer
	Info     *VideoInfo
	Attempts []Attempt
}

// Remote acquires audio from a video URL through an ordered list of strategies.
type Remote struct {
	runner     Runner
	decoders   []FileDecoder
	strategies []Strategy
	cfg        RemoteConfig
}

// NewRemote builds a Remote with DefaultStrategies.
func NewRemote(runner Runner, decoders []FileDecoder, cfg RemoteConfig) *Remote {
	return &Remote{
		runner:     runner,
		decoders:   decoders,
		strategies: DefaultStrategies(),
		cfg:        cfg,
	}
}

// WithStrategies replaces the strategy list.
func (r *Remote) WithStrategies(strategies ...Strategy) *Remote {
	r.strategies = strategies
	return r
}

// ValidateURL reports whether url is an accepted video URL.
func ValidateURL(url string) error {
	if !VideoURLPattern.MatchString(url) {
		return audio.ClientInput("validate_url", audio.ErrInvalidURL)
	}
	return nil
}

// Acquire validates url, fetches metadata, enforces the duration cap and runs
// each strategy until one yields audio. Every temporary file is removed
// before Acquire returns, whatever the outcome.
func (r *Remote) Acquire(ctx context.Context, url string) (*RemoteResult, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "remote_acquisition",
		"function":  "Acquire",
		"url":       url,
	}).WithContext(ctx)

	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	ws, err := NewWorkspace(r.cfg.TempDir, "sonido-remote-*")
	if err != nil {
		return nil, audio.NewError(audio.KindInternal, "workspace", err)
	}
	defer ws.Close()

	info, err := r.runner.Metadata(ctx, url)
	if err != nil || info == nil {
		if err == nil {
			err = errors.New("empty metadata")
		}
		logger.Warn("Metadata fetch failed", logging.Fields{"error": err.Error()})
		return nil, audio.Transient("metadata", fmt.Errorf("%w: %v", audio.ErrMetadataUnavailable, err))
	}

	if limit := r.cfg.MaxDuration.Seconds(); limit > 0 && info.Duration > limit {
		return nil, audio.ClientInput("duration_check",
			fmt.Errorf("%w (max %d minutes)", audio.ErrVideoTooLong, int(r.cfg.MaxDuration.Minutes())))
	}

	job := &Job{URL: url, Workspace: ws, Runner: r.runner, Decoders: r.decoders}
	result := &RemoteResult{Info: info}

	for _, s := range r.strategies {
		if ctx.Err() != nil {
			break
		}

		attempt := Attempt{Strategy: s.Name(), State: StateDurationChecked}
		buf, err := s.Acquire(ctx, job, &attempt)
		attempt.Err = err
		result.Attempts = append(result.Attempts, attempt)

		if err == nil && buf.Len() > 0 {
			result.Buffer = buf
			logger.Info("Remote audio acquired", logging.Fields{
				"strategy": s.Name(),
				"samples":  buf.Len(),
				"attempts": len(result.Attempts),
			})
			return result, nil
		}

		logger.Warn("Acquisition strategy failed", logging.Fields{
			"strategy": s.Name(),
			"state":    attempt.State.String(),
			"error":    fmt.Sprint(err),
		})
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, audio.Transient("remote_acquire", ctxErr)
	}
	return result, audio.Extraction("remote_acquire", audio.ErrExtractionFailed)
}
