package benchmark

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/models/postprocess"
)

type mockEngine struct {
	calls  atomic.Int64
	failAt int64
	sizes  chan image.Point
}

func (m *mockEngine) Classify(_ context.Context, img *images.Image) (*postprocess.Classification, error) {
	n := m.calls.Add(1)
	if m.sizes != nil {
		select {
		case m.sizes <- image.Pt(img.Width, img.Height):
		default:
		}
	}
	if m.failAt > 0 && n%m.failAt == 0 {
		return nil, errors.New("inference failed")
	}
	return &postprocess.Classification{Label: "healthy"}, nil
}

func (m *mockEngine) ClassifyImage(context.Context, image.Image) (*postprocess.Classification, error) {
	return &postprocess.Classification{Label: "healthy"}, nil
}

func (m *mockEngine) Info() inference.Info   { return inference.Info{} }
func (m *mockEngine) Stats() inference.Stats { return inference.Stats{} }
func (m *mockEngine) Close() error           { return nil }

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithResolution(416, 320).
		WithImageFormat(images.FormatWebP).
		WithIterations(50).
		WithWarmupRuns(5).
		WithConcurrency(4).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, Resolution{Width: 416, Height: 320, Name: "416x320"}, scenario.Resolution)
	assert.Equal(t, images.FormatWebP, scenario.Format)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
	assert.Equal(t, 4, scenario.Concurrency)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(" 640X480 ")
	require.NoError(t, err)
	assert.Equal(t, NewResolution(640, 480), r)

	for _, bad := range []string{"640", "x480", "640x", "-1x5", "axb"} {
		_, err := ParseResolution(bad)
		assert.Error(t, err, bad)
	}
}

func TestMatrixAndScenarioFile(t *testing.T) {
	set := Matrix(
		[]Resolution{NewResolution(32, 32), NewResolution(64, 48)},
		[]images.ImageFormat{images.FormatJPEG, images.FormatPNG},
		10, 1, 2,
	)
	require.Len(t, set.Scenarios, 4)
	assert.Equal(t, "32x32_jpeg", set.Scenarios[0].Name)
	assert.Equal(t, "64x48_png", set.Scenarios[3].Name)

	file := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, SaveScenarioSet(set, file))
	loaded, err := LoadScenarioSet(file)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)
}

func TestEncodeRoundTrip(t *testing.T) {
	src := Synthetic(20, 10)
	for _, format := range []images.ImageFormat{
		images.FormatJPEG, images.FormatPNG, images.FormatGIF,
		images.FormatBMP, images.FormatTIFF, images.FormatWebP,
	} {
		data, err := Encode(src, format)
		require.NoError(t, err, format)

		img, err := images.NewImage(data)
		require.NoError(t, err, format)
		assert.Equal(t, format, img.Format)
		assert.Equal(t, 20, img.Width)
		assert.Equal(t, 10, img.Height)
	}

	_, err := Encode(src, images.FormatUnknown)
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	engine := &mockEngine{failAt: 5, sizes: make(chan image.Point, 1)}
	suite := NewSuite(engine, t.TempDir())

	scenario := NewScenarioBuilder("png").
		WithResolution(40, 30).
		WithImageFormat(images.FormatPNG).
		WithIterations(20).
		WithWarmupRuns(0).
		WithConcurrency(3).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, int64(20), engine.calls.Load())
	assert.Equal(t, 4, metrics.Errors)
	assert.InDelta(t, 0.2, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 16, metrics.Labels["healthy"])
	assert.Greater(t, metrics.ImagesPerSecond, 0.0)
	assert.Equal(t, image.Pt(40, 30), <-engine.sizes)
}

func TestRunScenarioInvalid(t *testing.T) {
	suite := NewSuite(&mockEngine{}, t.TempDir())

	_, err := suite.RunScenario(context.Background(), Scenario{Name: "zero", Resolution: NewResolution(8, 8)})
	assert.Error(t, err)

	_, err = suite.RunScenario(context.Background(), Scenario{Name: "size", Iterations: 1})
	assert.Error(t, err)

	_, err = suite.RunScenario(context.Background(), NewScenarioBuilder("fmt").WithImageFormat("heic").Build())
	assert.Error(t, err)
}

func TestRunAllAndSave(t *testing.T) {
	dir := t.TempDir()
	suite := NewSuite(&mockEngine{}, filepath.Join(dir, "out"))
	suite.AddScenarios(Matrix([]Resolution{NewResolution(16, 16)}, []images.ImageFormat{images.FormatJPEG, "heic"}, 3, 1, 1))
	require.Len(t, suite.Scenarios(), 2)

	results, err := suite.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	jsonFile, csvFile, err := suite.SaveResults()
	require.NoError(t, err)
	assert.FileExists(t, jsonFile)

	f, err := os.Open(csvFile)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "16x16_jpeg", rows[1][0])

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, results))
	assert.True(t, strings.HasPrefix(buf.String(), "SCENARIO"))
}

func TestRunAllCancelled(t *testing.T) {
	suite := NewSuite(&mockEngine{}, t.TempDir())
	suite.AddScenario(NewScenarioBuilder("c").WithResolution(8, 8).WithIterations(5).Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := suite.RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	data, err := Encode(Synthetic(12, 9), images.FormatPNG)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaf.png"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("nope"), 0o644))

	engine := &mockEngine{sizes: make(chan image.Point, 1)}
	suite := NewSuite(engine, dir)
	require.NoError(t, suite.LoadCorpus(dir))

	_, err = suite.RunScenario(context.Background(),
		NewScenarioBuilder("corpus").WithResolution(24, 18).WithIterations(2).WithWarmupRuns(0).Build())
	require.NoError(t, err)
	assert.Equal(t, image.Pt(24, 18), <-engine.sizes)

	assert.Error(t, suite.LoadCorpus(t.TempDir()))
}
