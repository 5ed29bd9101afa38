package acquisition

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-emotion/audio"
)

const testURL = "https://www.youtube.com/watch?v=abc123"

// fakeRunner writes canned files for each download format.
type fakeRunner struct {
	mu            sync.Mutex
	info          *VideoInfo
	metaErr       error
	outputs       map[string]map[string]string // format -> ext -> content
	downloadErrs  map[string]error
	blockDownload bool

	metadataCalls int
	downloads     []DownloadOptions
}

func (f *fakeRunner) Metadata(ctx context.Context, url string) (*VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	return f.info, f.metaErr
}

func (f *fakeRunner) Download(ctx context.Context, url string, opts DownloadOptions) error {
	f.mu.Lock()
	f.downloads = append(f.downloads, opts)
	block := f.blockDownload
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.downloadErrs[opts.Format]; err != nil {
		return err
	}
	for ext, content := range f.outputs[opts.Format] {
		path := strings.Replace(opts.OutputTemplate, "%(ext)s", ext, 1)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls + len(f.downloads)
}

// fakeDecoder decodes anything whose content is "good".
type fakeDecoder struct {
	name string
}

func (d fakeDecoder) Name() string { return d.name }

func (d fakeDecoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	switch string(data) {
	case "good":
		return audio.NewBuffer([]float64{0.1, 0.2, 0.3}), nil
	case "empty":
		return audio.NewBuffer(nil), nil
	default:
		return nil, errors.New("cannot decode")
	}
}

func (d fakeDecoder) DecodeFile(ctx context.Context, path string) (*audio.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.DecodeBytes(ctx, data)
}

func newTestRemote(t *testing.T, runner *fakeRunner) (*Remote, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := DefaultRemoteConfig()
	cfg.TempDir = tmp
	return NewRemote(runner, []FileDecoder{fakeDecoder{name: "fake"}}, cfg), tmp
}

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=abc",
		"http://youtube.com/shorts/x",
		"youtu.be/abc",
		"www.youtube.com/watch?v=1",
	}
	invalid := []string{
		"",
		"https://vimeo.com/123",
		"https://youtube.com/",
		"ftp://youtube.com/watch",
		"https://evil.com/youtube.com/watch",
	}

	for _, u := range valid {
		assert.NoError(t, ValidateURL(u), u)
	}
	for _, u := range invalid {
		err := ValidateURL(u)
		assert.True(t, errors.Is(err, audio.ErrInvalidURL), u)
		assert.True(t, audio.IsClientInput(err), u)
	}
}

func TestInvalidURLMakesNoCalls(t *testing.T) {
	runner := &fakeRunner{info: &VideoInfo{Duration: 10}}
	remote, tmp := newTestRemote(t, runner)

	_, err := remote.Acquire(context.Background(), "https://example.com/video")
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrInvalidURL))
	assert.Equal(t, 0, runner.calls())
	assertNoLeftovers(t, tmp)
}

func TestDurationCap(t *testing.T) {
	tests := []struct {
		duration float64
		rejected bool
	}{
		{600, false},
		{601, true},
		{0, false},
	}

	for _, tt := range tests {
		runner := &fakeRunner{
			info:    &VideoInfo{Duration: tt.duration},
			outputs: map[string]map[string]string{FormatPreferred: {"wav": "good"}},
		}
		remote, tmp := newTestRemote(t, runner)

		_, err := remote.Acquire(context.Background(), testURL)
		if tt.rejected {
			require.Error(t, err)
			assert.True(t, errors.Is(err, audio.ErrVideoTooLong))
			assert.True(t, audio.IsClientInput(err))
			assert.Empty(t, runner.downloads, "download started for %v s video", tt.duration)
		} else {
			require.NoError(t, err)
			assert.NotEmpty(t, runner.downloads)
		}
		assertNoLeftovers(t, tmp)
	}
}

func TestMetadataFailureIsTerminal(t *testing.T) {
	runner := &fakeRunner{metaErr: errors.New("private video")}
	remote, tmp := newTestRemote(t, runner)

	_, err := remote.Acquire(context.Background(), testURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrMetadataUnavailable))
	assert.Equal(t, audio.KindTransient, audio.KindOf(err))
	assert.Empty(t, runner.downloads)
	assertNoLeftovers(t, tmp)
}

func TestTranscodedStrategySucceeds(t *testing.T) {
	runner := &fakeRunner{
		info:    &VideoInfo{Duration: 30},
		outputs: map[string]map[string]string{FormatPreferred: {"wav": "good"}},
	}
	remote, tmp := newTestRemote(t, runner)

	res, err := remote.Acquire(context.Background(), testURL)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Buffer.Len())
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "transcoded", res.Attempts[0].Strategy)
	assert.Equal(t, StateDecoded, res.Attempts[0].State)

	require.Len(t, runner.downloads, 1)
	opts := runner.downloads[0]
	assert.True(t, opts.ExtractAudio)
	assert.Equal(t, "wav", opts.AudioFormat)
	assert.Equal(t, "ExtractAudio+ffmpeg_o:-ar 22050", opts.PostprocessorArgs)
	assertNoLeftovers(t, tmp)
}

func TestSiblingScanPicksFirstDecodable(t *testing.T) {
	runner := &fakeRunner{
		info: &VideoInfo{Duration: 30},
		outputs: map[string]map[string]string{FormatPreferred: {
			"wav":  "corrupt",
			"webm": "corrupt",
			"m4a":  "good",
			"mp3":  "good",
		}},
	}
	remote, tmp := newTestRemote(t, runner)

	res, err := remote.Acquire(context.Background(), testURL)
	require.NoError(t, err)

	require.Len(t, res.Attempts, 2)
	assert.Error(t, res.Attempts[0].Err)
	sibling := res.Attempts[1]
	assert.Equal(t, "sibling-scan", sibling.Strategy)
	require.Len(t, sibling.Files, 2)
	assert.Equal(t, "audio.webm", filepath.Base(sibling.Files[0]))
	assert.Equal(t, "audio.m4a", filepath.Base(sibling.Files[1]))
	assert.Len(t, runner.downloads, 1)
	assertNoLeftovers(t, tmp)
}

func TestDirectFallback(t *testing.T) {
	runner := &fakeRunner{
		info: &VideoInfo{Duration: 30},
		outputs: map[string]map[string]string{
			FormatPreferred: {},
			FormatSimple:    {"mp4": "good"},
		},
	}
	remote, tmp := newTestRemote(t, runner)

	res, err := remote.Acquire(context.Background(), testURL)
	require.NoError(t, err)

	require.Len(t, res.Attempts, 3)
	assert.Equal(t, "direct", res.Attempts[2].Strategy)
	require.Len(t, runner.downloads, 2)
	assert.Equal(t, FormatSimple, runner.downloads[1].Format)
	assert.False(t, runner.downloads[1].ExtractAudio)
	// direct writes to a fresh directory
	assert.NotEqual(t, filepath.Dir(runner.downloads[0].OutputTemplate), filepath.Dir(runner.downloads[1].OutputTemplate))
	assertNoLeftovers(t, tmp)
}

func TestDownloadErrorFallsThrough(t *testing.T) {
	runner := &fakeRunner{
		info:         &VideoInfo{Duration: 30},
		downloadErrs: map[string]error{FormatPreferred: errors.New("HTTP 403")},
		outputs:      map[string]map[string]string{FormatSimple: {"webm": "good"}},
	}
	remote, tmp := newTestRemote(t, runner)

	res, err := remote.Acquire(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, "direct", res.Attempts[len(res.Attempts)-1].Strategy)
	assertNoLeftovers(t, tmp)
}

func TestAllStrategiesExhausted(t *testing.T) {
	runner := &fakeRunner{
		info: &VideoInfo{Duration: 30},
		outputs: map[string]map[string]string{
			FormatPreferred: {"wav": "bad", "opus": "bad"},
			FormatSimple:    {"webm": "bad", "m4a": "empty"},
		},
	}
	remote, tmp := newTestRemote(t, runner)

	res, err := remote.Acquire(context.Background(), testURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrExtractionFailed))
	assert.Equal(t, audio.KindExtraction, audio.KindOf(err))
	assert.Len(t, res.Attempts, 3)
	assertNoLeftovers(t, tmp)
}

func TestTimeoutIsTransient(t *testing.T) {
	runner := &fakeRunner{info: &VideoInfo{Duration: 30}, blockDownload: true}
	tmp := t.TempDir()
	remote := NewRemote(runner, []FileDecoder{fakeDecoder{name: "fake"}}, RemoteConfig{
		MaxDuration: 600 * time.Second,
		Timeout:     50 * time.Millisecond,
		TempDir:     tmp,
	})

	_, err := remote.Acquire(context.Background(), testURL)
	require.Error(t, err)
	assert.Equal(t, audio.KindTransient, audio.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assertNoLeftovers(t, tmp)
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "panics" }

func (panickingStrategy) Acquire(ctx context.Context, job *Job, attempt *Attempt) (*audio.Buffer, error) {
	if err := os.WriteFile(filepath.Join(job.Workspace.Root(), "partial.webm"), []byte("x"), 0o600); err != nil {
		return nil, err
	}
	panic("unexpected fault")
}

func TestCleanupOnPanic(t *testing.T) {
	runner := &fakeRunner{info: &VideoInfo{Duration: 30}}
	remote, tmp := newTestRemote(t, runner)
	remote.WithStrategies(panickingStrategy{})

	assert.Panics(t, func() {
		_, _ = remote.Acquire(context.Background(), testURL)
	})
	assertNoLeftovers(t, tmp)
}

func TestWorkspaceCloseIsIdempotent(t *testing.T) {
	parent := t.TempDir()
	ws, err := NewWorkspace(parent, "ws-*")
	require.NoError(t, err)

	dir, err := ws.NewDir("direct")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.webm"), []byte("x"), 0o600))
	assert.Len(t, ws.Files(), 1)

	ws.Close()
	ws.Close()
	assertNoLeftovers(t, parent)
}

func TestDownloadArgs(t *testing.T) {
	args := downloadArgs(testURL, DownloadOptions{
		Format:            FormatPreferred,
		OutputTemplate:    "/tmp/x/audio.%(ext)s",
		ExtractAudio:      true,
		AudioFormat:       "wav",
		PostprocessorArgs: "ExtractAudio+ffmpeg_o:-ar 22050",
	})

	assert.Equal(t, testURL, args[len(args)-1])
	assert.Contains(t, args, "-x")
	assert.Contains(t, args, "--postprocessor-args")
	assert.Contains(t, args, FormatPreferred)

	simple := downloadArgs(testURL, DownloadOptions{Format: FormatSimple, OutputTemplate: "o"})
	assert.NotContains(t, simple, "-x")
}

func TestYTDLPMissingBinary(t *testing.T) {
	y := NewYTDLP(filepath.Join(t.TempDir(), "no-yt-dlp"))
	_, err := y.Metadata(context.Background(), testURL)
	assert.Error(t, err)
}

func TestFromSamples(t *testing.T) {
	l := NewLocal()

	_, err := l.FromSamples(nil, 0)
	assert.True(t, errors.Is(err, audio.ErrEmptyInput))
	assert.True(t, audio.IsClientInput(err))

	in := []float64{0.5, -0.5}
	buf, err := l.FromSamples(in, 0)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, buf.SampleRate)
	buf.Samples[0] = 9
	assert.Equal(t, 0.5, in[0], "caller slice must not be shared")

	_, err = l.FromSamples(in, -1)
	assert.True(t, audio.IsClientInput(err))
}

func TestFromSamplesResamplesDeclaredRate(t *testing.T) {
	in := make([]float64, 44100)
	for i := range in {
		in[i] = 0.25
	}
	buf, err := NewLocal().FromSamples(in, 44100)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, buf.SampleRate)
	assert.InDelta(t, 22050, buf.Len(), 1)
}

func TestFromSamplesShortClipAtDeclaredRate(t *testing.T) {
	in := make([]float64, 200)
	for i := range in {
		in[i] = 0.5
	}
	buf, err := NewLocal().FromSamples(in, 44100)
	require.NoError(t, err)
	assert.InDelta(t, 100, buf.Len(), 1)
}

func TestFromBlob(t *testing.T) {
	primary := fakeDecoder{name: "primary"}
	ctx := context.Background()

	tests := []struct {
		name        string
		data        string
		contentType string
		decoders    []BlobDecoder
		wantErr     error
	}{
		{"decodes", "good", "audio/wav", []BlobDecoder{primary}, nil},
		{"empty content type allowed", "good", "", []BlobDecoder{primary}, nil},
		{"non-audio content type", "good", "video/mp4", []BlobDecoder{primary}, audio.ErrUnsupportedContentType},
		{"empty blob", "", "audio/wav", []BlobDecoder{primary}, audio.ErrEmptyInput},
		{"both decoders fail", "garbage", "audio/mpeg", []BlobDecoder{primary, fakeDecoder{name: "secondary"}}, audio.ErrUndecodable},
		{"decoded but empty", "empty", "audio/ogg", []BlobDecoder{primary}, audio.ErrEmptyDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			l := NewLocal(tt.decoders...)
			l.TempDir = tmp
			buf, err := l.FromBlob(ctx, []byte(tt.data), tt.contentType)
			assertNoLeftovers(t, tmp)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 3, buf.Len())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.True(t, audio.IsClientInput(err))
		})
	}
}

type failingDecoder struct{ calls *int }

func (failingDecoder) Name() string { return "failing" }

func (d failingDecoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	*d.calls++
	return nil, errors.New("ffmpeg decode failed")
}

func TestFromBlobFallsBackToSecondary(t *testing.T) {
	calls := 0
	l := NewLocal(failingDecoder{calls: &calls}, fakeDecoder{name: "native"})

	buf, err := l.FromBlob(context.Background(), []byte("good"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, buf.Len())
}

// pathDecoder only accepts files and records what it saw while decoding.
type pathDecoder struct {
	paths    *[]string
	contents *[]string
}

func (pathDecoder) Name() string { return "path" }

func (pathDecoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	return nil, errors.New("pipe input not seekable")
}

func (d pathDecoder) DecodeFile(ctx context.Context, path string) (*audio.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	*d.paths = append(*d.paths, path)
	*d.contents = append(*d.contents, string(data))
	return audio.NewBuffer([]float64{0.1, 0.2}), nil
}

func TestFromBlobDecodesFromWorkspaceFile(t *testing.T) {
	tmp := t.TempDir()
	var paths, contents []string
	l := NewLocal(pathDecoder{paths: &paths, contents: &contents})
	l.TempDir = tmp

	buf, err := l.FromBlob(context.Background(), []byte("ftyp....moov"), "audio/mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Len())

	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], tmp))
	assert.Equal(t, []string{"ftyp....moov"}, contents)
	assertNoLeftovers(t, tmp)
}

func TestFromBlobWorkspaceRemovedOnFailure(t *testing.T) {
	tmp := t.TempDir()
	l := NewLocal(fakeDecoder{name: "primary"}, fakeDecoder{name: "secondary"})
	l.TempDir = tmp

	_, err := l.FromBlob(context.Background(), []byte("garbage"), "audio/mpeg")
	assert.True(t, errors.Is(err, audio.ErrUndecodable))
	assertNoLeftovers(t, tmp)
}

// emptyDecoder decodes everything to zero samples.
type emptyDecoder struct{}

func (emptyDecoder) Name() string { return "empty" }

func (emptyDecoder) DecodeBytes(ctx context.Context, data []byte) (*audio.Buffer, error) {
	return audio.NewBuffer(nil), nil
}

func TestFromBlobEmptyPrimaryFallsBack(t *testing.T) {
	l := NewLocal(emptyDecoder{}, fakeDecoder{name: "native"})
	l.TempDir = t.TempDir()

	buf, err := l.FromBlob(context.Background(), []byte("good"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, 3, buf.Len())

	_, err = NewLocal(emptyDecoder{}, fakeDecoder{name: "native"}).FromBlob(context.Background(), []byte("garbage"), "")
	assert.True(t, errors.Is(err, audio.ErrEmptyDecode))
}

func TestFromSamplesRepairsBeforeResampling(t *testing.T) {
	in := make([]float64, 4410)
	for i := range in {
		in[i] = 0.25
	}
	in[10] = math.NaN()
	in[20] = math.Inf(1)
	in[30] = math.Inf(-1)

	buf, err := NewLocal().FromSamples(in, 44100)
	require.NoError(t, err)
	for i, v := range buf.Samples {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite sample at %d", i)
	}
	assert.True(t, math.IsNaN(in[10]), "caller slice must not be repaired in place")
}
