package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/pipeline"
)

var (
	dirConcurrency int
	dirJSON        bool
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".webm": true,
	".opus": true,
}

var predictDirCmd = &cobra.Command{
	Use:   "predict-dir <dir>",
	Short: "Predict the emotion of every audio file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredictDir,
}

func init() {
	predictDirCmd.Flags().IntVarP(&dirConcurrency, "concurrency", "j", runtime.NumCPU(), "files processed in parallel")
	predictDirCmd.Flags().BoolVar(&dirJSON, "json", false, "print results as JSON")
}

func collectAudioFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if audioExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// predictFiles runs predict over files with a bounded worker pool. Results
// are sorted by path.
func predictFiles(ctx context.Context, files []string, workers int, predict func(context.Context, pipeline.Input) (*pipeline.Result, error), bar *progressbar.ProgressBar) []predictionOutput {
	jobs := make(chan string, len(files))
	results := make(chan predictionOutput, len(files))

	var wg sync.WaitGroup
	for range max(1, workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- predictFile(ctx, path, predict)
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]predictionOutput, 0, len(files))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func predictFile(ctx context.Context, path string, predict func(context.Context, pipeline.Input) (*pipeline.Result, error)) predictionOutput {
	data, err := os.ReadFile(path)
	if err != nil {
		return predictionOutput{Path: path, Error: err.Error()}
	}
	res, err := predict(ctx, pipeline.BlobInput{Data: data, ContentType: contentTypeFor(path)})
	if err != nil {
		return predictionOutput{Path: path, Error: err.Error()}
	}
	return toOutput(path, res)
}

func printTable(w io.Writer, results []predictionOutput) {
	counts := map[string]int{}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(w, "%-60s ERROR %s\n", r.Path, r.Error)
			continue
		}
		counts[r.Emotion]++
		conf := "-"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Confidence)
		}
		fmt.Fprintf(w, "%-60s %-10s %s\n", r.Path, r.Emotion, conf)
	}

	fmt.Fprintf(w, "\n%d files, %d failed\n", len(results), failed)
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(w, "  %-10s %d\n", l, counts[l])
	}
}

func runPredictDir(cmd *cobra.Command, args []string) error {
	root := args[0]
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("path not found: %s", root)
	}

	files, err := collectAudioFiles(root)
	if err != nil {
		return fmt.Errorf("collect audio files: %w", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no audio files found")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !dirJSON {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("predicting"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowIts(),
		)
	}

	results := predictFiles(cmd.Context(), files, dirConcurrency, a.pipeline.Predict, bar)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	if dirJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printTable(cmd.OutOrStdout(), results)
	return nil
}
