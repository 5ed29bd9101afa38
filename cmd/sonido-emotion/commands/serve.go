package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/config"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/server"
	"github.com/RyanBlaney/sonido-emotion/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Load the model, open the record store and serve the prediction API.

The process refuses to start if the model artifact is missing or corrupt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func openRecorder(cfg *config.Config) (store.Recorder, error) {
	if cfg.Store.Backend == "memory" {
		return store.NewMemory(), nil
	}
	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := store.NewBadger(store.BadgerOptions{Dir: cfg.Store.Dir})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.WithFields(logging.Fields{"component": "serve"})

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	recorder, err := openRecorder(cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: server.New(server.Options{
			Predictor:           a.pipeline,
			Recorder:            recorder,
			AllowedOrigins:      cfg.Server.Origins(),
			RemoteRatePerMinute: cfg.Server.RemoteRatePerMinute,
			MaxUploadBytes:      cfg.Server.MaxUploadBytes,
		}).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", logging.Fields{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down", logging.Fields{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
