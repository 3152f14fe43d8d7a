package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/providers"
	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/postprocess"
)

type fakeEngine struct {
	closed  bool
	size    image.Point
	classes []string
}

func (f *fakeEngine) Classify(_ context.Context, img *images.Image) (*postprocess.Classification, error) {
	if img.Width == 1 {
		return nil, errors.New("too small")
	}
	return &postprocess.Classification{Label: f.classes[1], Index: 1, Confidence: 0.75, Scores: []float32{0.25, 0.75}}, nil
}

func (f *fakeEngine) ClassifyImage(_ context.Context, img image.Image) (*postprocess.Classification, error) {
	f.size = img.Bounds().Size()
	return &postprocess.Classification{Label: f.classes[0], Index: 0, Confidence: 0.5, Scores: []float32{0.5, 0.5}}, nil
}

func (f *fakeEngine) Info() inference.Info {
	return inference.Info{
		Model:       model.ModelNameResNet,
		Backend:     providers.CPUProviderBackend,
		InputName:   "input",
		InputShape:  []int64{1, 3, 96, 128},
		OutputName:  "logits",
		OutputShape: []int64{1, 2},
		Layout:      model.LayoutNCHW,
		Classes:     len(f.classes),
		PoolSize:    1,
		Notes:       []string{"dynamic batch in input, using 1"},
	}
}

func (f *fakeEngine) Stats() inference.Stats { return inference.Stats{} }

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func withFakes(t *testing.T, engine *fakeEngine, engineErr error) {
	t.Helper()
	prevEngine, prevInspect := openEngine, inspectModel
	t.Cleanup(func() { openEngine, inspectModel = prevEngine, prevInspect })

	openEngine = func(context.Context, *config.Config, *slog.Logger) (inference.Engine, error) {
		if engineErr != nil {
			return nil, engineErr
		}
		return engine, nil
	}
	inspectModel = func(cfg *config.Config) (*providers.ModelInfo, error) {
		return &providers.ModelInfo{
			Path: cfg.Model.Path,
			Inputs: []providers.TensorInfo{
				{Name: "input_1", Dims: []int64{-1, 224, 224, 3}, ElementType: "float", Float: true},
			},
			Outputs: []providers.TensorInfo{
				{Name: "dense_5", Dims: []int64{-1, 7}, ElementType: "float", Float: true},
			},
			Metadata: providers.Metadata{
				Producer: "tf2onnx",
				Graph:    "sequential",
				Version:  1,
				Custom:   map[string]string{"b": "2", "a": "1"},
			},
		}, nil
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCapture(t, args...)
	return out, err
}

// runCapture executes the command tree and returns stdout and stderr, the
// latter holding the log output.
func runCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("PORT", "")
	t.Setenv("CLASSIFY_SERVER_PORT", "")

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestCheck(t *testing.T) {
	engine := &fakeEngine{classes: []string{"healthy", "rust"}}
	withFakes(t, engine, nil)

	out, err := run(t, "check", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "ORT library:   (none)")
	assert.Contains(t, out, "Loaded 2 classes")
	assert.Contains(t, out, "Predicted index:  0")
	assert.Contains(t, out, "Predicted label:  healthy")
	assert.Contains(t, out, "Raw output shape: [1 2]")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "VERIFICATION SUCCESSFUL"))
	assert.Equal(t, image.Pt(128, 96), engine.size)
	assert.True(t, engine.closed)
}

func TestCheckFails(t *testing.T) {
	withFakes(t, nil, errors.New("model file not found"))

	out, err := run(t, "check", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
	assert.NotContains(t, out, "VERIFICATION SUCCESSFUL")
}

func TestInspect(t *testing.T) {
	withFakes(t, nil, errors.New("not used"))

	out, err := run(t, "inspect", "leaf.onnx", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Model:       leaf.onnx")
	assert.Contains(t, out, "Producer:    tf2onnx")
	assert.Contains(t, out, "input_1[?,224,224,3]")
	assert.Contains(t, out, "dense_5[?,7]")
	assert.Less(t, strings.Index(out, "a = 1"), strings.Index(out, "b = 2"))

	out, err = run(t, "inspect", "leaf.onnx", "--json", "--log-level", "error")
	require.NoError(t, err)
	var info providers.ModelInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dense_5", info.Outputs[0].Name)
}

func TestPredict(t *testing.T) {
	engine := &fakeEngine{classes: []string{"healthy", "rust"}}
	withFakes(t, engine, nil)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("skip"), 0o644))

	out, err := run(t, "predict", "--dir", dir, "--log-level", "error")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, filepath.Join(dir, "a.png")+": rust (0.7500)", lines[0])
	assert.Equal(t, filepath.Join(dir, "b.png")+": rust (0.7500)", lines[1])
	assert.True(t, engine.closed)
}

func TestPredictFailures(t *testing.T) {
	withFakes(t, &fakeEngine{classes: []string{"healthy", "rust"}}, nil)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	tiny := filepath.Join(dir, "tiny.png")
	writePNG(t, good, 4, 4)
	writePNG(t, tiny, 1, 1)

	out, err := run(t, "predict", good, tiny, "--json", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 images failed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "rust", first["prediction"])
	assert.Equal(t, "too small", second["error"])

	_, err = run(t, "predict", "--log-level", "error")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	withFakes(t, nil, nil)
	_, err := run(t, "check", "--log-level", "loud")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: -1\n"), 0o644))
	_, err = run(t, "check", "--config", file)
	assert.Error(t, err)
}

func TestNewServerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	s := newServer(&cfg, nil, nil, nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.Handler())
}

func TestBenchmark(t *testing.T) {
	withFakes(t, &fakeEngine{classes: []string{"healthy", "rust"}}, nil)
	out := filepath.Join(t.TempDir(), "results")

	stdout, err := run(t, "benchmark",
		"--resolutions", "16x16",
		"--formats", "png,jpeg",
		"--iterations", "3",
		"--warmup", "0",
		"--output", out,
		"--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, "16x16_png")
	assert.Contains(t, stdout, "16x16_jpeg")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = run(t, "benchmark", "--resolutions", "big", "--log-level", "error")
	assert.Error(t, err)
}
