// Package config loads process-wide settings from YAML with SONIDO_*
// environment overrides. Audio constants (22050 Hz, 3 s clips, 128 mel
// bands) are not configurable.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Remote  RemoteConfig  `yaml:"remote"`
	Decoder DecoderConfig `yaml:"decoder"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr                string   `yaml:"addr"`
	FrontendURL         string   `yaml:"frontend_url"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	RemoteRatePerMinute int      `yaml:"remote_rate_per_minute"` // per client; 0 disables
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"` // must cover the remote timeout
	MaxUploadBytes      int64    `yaml:"max_upload_bytes"`
	BatchWorkers        int      `yaml:"batch_workers"`
}

type ModelConfig struct {
	Backend         string   `yaml:"backend"` // "native" or "onnx"
	ArtifactPath    string   `yaml:"artifact_path"`
	ONNXLibraryPath string   `yaml:"onnx_library_path"`
	Labels          []string `yaml:"labels"` // onnx only; native artifacts carry their own
}

type RemoteConfig struct {
	MaxDurationSeconds int    `yaml:"max_duration_seconds"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	TempDir            string `yaml:"temp_dir"`
	YTDLPPath          string `yaml:"ytdlp_path"`
}

type DecoderConfig struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	FFprobePath      string `yaml:"ffprobe_path"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	ResampleQuality  string `yaml:"resample_quality"`   // "fast", "medium" or "high"
	MaxDecodeSeconds int    `yaml:"max_decode_seconds"` // 0 decodes the whole file
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // "badger" or "memory"
	Dir     string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the settings used when no file or env override is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8000",
			FrontendURL:         "http://localhost:3000",
			AllowedOrigins:      []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RemoteRatePerMinute: 8,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 180,
			MaxUploadBytes:      50 << 20,
		},
		Model: ModelConfig{
			Backend:      "native",
			ArtifactPath: "models/emotion.msgpack",
			Labels:       slices.Clone(classifier.DefaultLabels),
		},
		Remote: RemoteConfig{
			MaxDurationSeconds: 600,
			TimeoutSeconds:     120,
			YTDLPPath:          "yt-dlp",
		},
		Decoder: DecoderConfig{
			FFmpegPath:     "ffmpeg",
			FFprobePath:     "ffprobe",
			TimeoutSeconds:  30,
			ResampleQuality: "high",
		},
		Store: StoreConfig{
			Backend: "badger",
			Dir:     "data/records",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (skipped when empty) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	// Later entries win, so SONIDO_FRONTEND_URL overrides FRONTEND_URL.
	strs := []struct {
		key string
		dst *string
	}{
		{"SONIDO_ADDR", &c.Server.Addr},
		{"FRONTEND_URL", &c.Server.FrontendURL},
		{"SONIDO_FRONTEND_URL", &c.Server.FrontendURL},
		{"SONIDO_MODEL_BACKEND", &c.Model.Backend},
		{"SONIDO_MODEL_PATH", &c.Model.ArtifactPath},
		{"SONIDO_ONNX_LIBRARY", &c.Model.ONNXLibraryPath},
		{"SONIDO_TEMP_DIR", &c.Remote.TempDir},
		{"SONIDO_YTDLP_PATH", &c.Remote.YTDLPPath},
		{"SONIDO_FFMPEG_PATH", &c.Decoder.FFmpegPath},
		{"SONIDO_FFPROBE_PATH", &c.Decoder.FFprobePath},
		{"SONIDO_STORE_BACKEND", &c.Store.Backend},
		{"SONIDO_STORE_DIR", &c.Store.Dir},
		{"SONIDO_LOG_LEVEL", &c.Log.Level},
		{"SONIDO_LOG_FORMAT", &c.Log.Format},
	}
	for _, e := range strs {
		if v := getenv(e.key); v != "" {
			*e.dst = v
		}
	}

	ints := map[string]*int{
		"SONIDO_MAX_VIDEO_SECONDS":      &c.Remote.MaxDurationSeconds,
		"SONIDO_REMOTE_TIMEOUT_SECONDS": &c.Remote.TimeoutSeconds,
		"SONIDO_RATE_PER_MINUTE":        &c.Server.RemoteRatePerMinute,
		"SONIDO_BATCH_WORKERS":          &c.Server.BatchWorkers,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := getenv("SONIDO_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := getenv("SONIDO_LABELS"); v != "" {
		c.Model.Labels = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RemoteRatePerMinute < 0 {
		return fmt.Errorf("server.remote_rate_per_minute must be >= 0")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	switch c.Model.Backend {
	case "native", "onnx":
	default:
		return fmt.Errorf("model.backend must be native or onnx, got %q", c.Model.Backend)
	}
	if c.Model.ArtifactPath == "" {
		return fmt.Errorf("model.artifact_path is required")
	}
	if c.Model.Backend == "onnx" && !slices.Contains(c.Model.Labels, classifier.DefaultLabel) {
		return fmt.Errorf("model.labels must include %q", classifier.DefaultLabel)
	}

	if c.Remote.MaxDurationSeconds <= 0 {
		return fmt.Errorf("remote.max_duration_seconds must be positive")
	}
	if c.Remote.TimeoutSeconds < 0 {
		return fmt.Errorf("remote.timeout_seconds must be >= 0")
	}
	if c.Decoder.TimeoutSeconds <= 0 {
		return fmt.Errorf("decoder.timeout_seconds must be positive")
	}
	if c.Decoder.MaxDecodeSeconds < 0 {
		return fmt.Errorf("decoder.max_decode_seconds must be >= 0")
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("store.backend must be badger or memory, got %q", c.Store.Backend)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Origins returns the CORS allow-list: AllowedOrigins plus FrontendURL.
func (s ServerConfig) Origins() []string {
	out := slices.Clone(s.AllowedOrigins)
	if s.FrontendURL != "" && !slices.Contains(out, s.FrontendURL) {
		out = append(out, s.FrontendURL)
	}
	return out
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

func (r RemoteConfig) MaxDuration() time.Duration {
	return time.Duration(r.MaxDurationSeconds) * time.Second
}

func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (d DecoderConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (d DecoderConfig) MaxDecode() time.Duration {
	return time.Duration(d.MaxDecodeSeconds) * time.Second
}

// NewLogger builds the process logger: zap JSON for format "json", the
// default text logger otherwise.
func (l LogConfig) NewLogger() (logging.Logger, error) {
	level := logging.ParseLevel(l.Level)
	if l.Format == "json" {
		return logging.NewZapLogger(level)
	}
	logger := logging.NewDefaultLogger()
	logger.SetLevel(level)
	return logger, nil
}
