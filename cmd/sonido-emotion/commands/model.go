package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/classifier"
)

var emotionsCmd = &cobra.Command{
	Use:   "emotions",
	Short: "List the labels of the configured model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scorer, closer, err := loadScorer(cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(scorer.Labels(), "\n"))
		return nil
	},
}

var (
	bootstrapSeed   int64
	bootstrapLabels []string
	bootstrapForce  bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <artifact>",
	Short: "Write a randomly initialized model artifact",
	Long: `Write a model artifact with the production architecture and random
weights. Predictions are meaningless; the artifact exists so the service can
be started and exercised before a trained model is exported.`,
	Args: cobra.ExactArgs(1),
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().Int64Var(&bootstrapSeed, "seed", 1, "random seed")
	bootstrapCmd.Flags().StringSliceVar(&bootstrapLabels, "labels", classifier.DefaultLabels, "output labels, in model order")
	bootstrapCmd.Flags().BoolVarP(&bootstrapForce, "force", "f", false, "overwrite an existing artifact")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil && !bootstrapForce {
		return fmt.Errorf("%s exists; use --force to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	a := classifier.NewRandomArtifact(bootstrapLabels, [classifier.NumStages]int{32, 64, 128, 256}, 128, 16, bootstrapSeed)
	if err := a.Validate(); err != nil {
		return err
	}
	if err := classifier.SaveArtifact(path, a); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d labels, seed %d)\n", path, len(a.Labels), bootstrapSeed)
	return nil
}
