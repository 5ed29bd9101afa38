package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/config"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

var (
	configPath string
	logLevel   string
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "sonido-emotion",
	Short: "Speech emotion recognition service",
	Long: `sonido-emotion predicts the emotion expressed in a short speech clip.

Audio arrives as raw samples, an uploaded file or a video URL. It is cleaned,
cut to three seconds, turned into a 128x128 log-mel spectrogram and scored by
a squeeze-and-excitation CNN.

Configuration is read from --config (YAML) and SONIDO_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, predictCmd, predictDirCmd, emotionsCmd, bootstrapCmd)
}

// loadConfig reads the config and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetGlobalLogger(logger)
	return cfg, nil
}
