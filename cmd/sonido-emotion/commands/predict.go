package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/pipeline"
)

var predictURL string

var predictCmd = &cobra.Command{
	Use:   "predict [file]",
	Short: "Predict the emotion of one audio file or video URL",
	Example: `  sonido-emotion predict clip.wav
  sonido-emotion predict --url https://youtu.be/VIDEO_ID
  cat clip.flac | sonido-emotion predict -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictURL, "url", "", "video URL to fetch instead of a file")
}

// predictionOutput is what predict and predict-dir print.
type predictionOutput struct {
	Path           string             `json:"path,omitempty"`
	Emotion        string             `json:"emotion"`
	Confidence     *float64           `json:"confidence,omitempty"`
	ProcessingTime float64            `json:"processing_time"`
	Silent         bool               `json:"silent,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func toOutput(path string, res *pipeline.Result) predictionOutput {
	return predictionOutput{
		Path:           path,
		Emotion:        res.Label,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime.Seconds(),
		Silent:         res.Silent,
		Scores:         res.Scores,
	}
}

// contentTypeFor guesses an audio/* type from the extension, or "".
func contentTypeFor(path string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if strings.HasPrefix(ct, "audio/") {
		return ct
	}
	return ""
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runPredict(cmd *cobra.Command, args []string) error {
	if (predictURL == "") == (len(args) == 0) {
		return fmt.Errorf("give exactly one of a file argument or --url")
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

	var (
		in   pipeline.Input
		path string
	)
	if predictURL != "" {
		in, path = pipeline.URLInput{URL: predictURL}, predictURL
	} else {
		path = args[0]
		data, err := readInput(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		in = pipeline.BlobInput{Data: data, ContentType: contentTypeFor(path)}
	}

	res, err := a.pipeline.Predict(context.Background(), in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(toOutput(path, res))
}
