package classifiers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/head"
	"github.com/nvr-ai/go-classify/models/mobilenet"
	"github.com/nvr-ai/go-classify/models/model"
)

type fakeRunner struct {
	mu     sync.Mutex
	output []float32
	err    error
	inputs [][]float32
}

func (f *fakeRunner) Run(_ context.Context, input []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, append([]float32(nil), input...))
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

func binding(t *testing.T, outputs int64) *model.Binding {
	t.Helper()
	m, err := mobilenet.NewModel(model.NewModelArgs{Path: "disease.onnx"})
	require.NoError(t, err)

	b, err := model.Resolve(m.Options(), model.Overrides{},
		[]model.Port{{Name: "input_1", Dims: []int64{-1, 4, 4, 3}, Float: true}},
		[]model.Port{{Name: "dense_1", Dims: []int64{-1, outputs}, Float: true}},
	)
	require.NoError(t, err)
	return b
}

func pngImage(t *testing.T, w, h int, c color.Color) *images.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, err := images.NewImage(buf.Bytes())
	require.NoError(t, err)
	return out
}

func classes() *models.ClassIndex {
	return models.NewClassIndexFromLabels([]string{"Apple___Apple_scab", "Apple___Black_rot", "Apple___healthy"})
}

func TestClassify(t *testing.T) {
	runner := &fakeRunner{output: []float32{0.1, 0.7, 0.2}}
	cfg := DefaultConfig(binding(t, 3), classes())
	cfg.TopK = 5
	c, err := NewClassifier(runner, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Width())

	res, err := c.Classify(context.Background(), pngImage(t, 10, 8, color.White))
	require.NoError(t, err)

	assert.Equal(t, "Apple___Black_rot", res.Label)
	assert.Equal(t, 1, res.Index)
	assert.InDelta(t, 0.7, res.Confidence, 1e-6)
	require.Len(t, res.Top, 3)
	assert.Equal(t, "Apple___healthy", res.Top[1].Label)

	require.Len(t, runner.inputs, 1)
	require.Len(t, runner.inputs[0], 4*4*3)
	for _, v := range runner.inputs[0] {
		assert.InDelta(t, 1.0, v, 1e-2, "white pixels scale to 1")
	}
}

func TestClassifyUnknownClass(t *testing.T) {
	runner := &fakeRunner{output: []float32{0.1, 0.1, 0.1, 0.7}}
	cfg := DefaultConfig(binding(t, 4), classes())
	assert.Equal(t, 1, cfg.TopK)

	c, err := NewClassifier(runner, cfg)
	require.NoError(t, err)

	res, err := c.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "Unknown Class (3)", res.Label)
	assert.Empty(t, res.Top)
}

func TestClassifySoftmaxesLogits(t *testing.T) {
	runner := &fakeRunner{output: []float32{3, -1, 0}}
	c, err := NewClassifier(runner, DefaultConfig(binding(t, 3), classes()))
	require.NoError(t, err)

	res, err := c.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)

	var sum float32
	for _, s := range res.Scores {
		sum += s
	}
	assert.InDelta(t, 1, sum, 1e-5)
}

func TestClassifyWithHead(t *testing.T) {
	h, err := head.New([]head.Layer{
		{Name: "dense", Activation: "relu", Weights: [][]float32{{1, 0, 0}, {0, 1, 0}}, Bias: []float32{0, 0, 1}},
		{Name: "dropout", Type: "dropout"},
		{Name: "predictions", Activation: "softmax", Weights: [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, Bias: []float32{0, 0, 0}},
	})
	require.NoError(t, err)
	defer h.Close()

	cfg := DefaultConfig(binding(t, 2), classes())
	cfg.Head = h

	runner := &fakeRunner{output: []float32{0, 5}}
	c, err := NewClassifier(runner, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Width())

	res, err := c.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "Apple___Black_rot", res.Label)
	assert.Len(t, res.Scores, 3)

	cfg.Binding = binding(t, 5)
	_, err = NewClassifier(runner, cfg)
	assert.Error(t, err, "head width must match the model output")
}

func TestClassifyErrors(t *testing.T) {
	_, err := NewClassifier(nil, DefaultConfig(binding(t, 3), classes()))
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = NewClassifier(&fakeRunner{}, Config{})
	assert.Error(t, err)

	runner := &fakeRunner{output: []float32{0.5, 0.5, 0}}
	c, err := NewClassifier(runner, DefaultConfig(binding(t, 3), classes()))
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), &images.Image{Data: []byte("not an image")})
	assert.ErrorIs(t, err, ErrInvalidImage)

	runner.err = errors.New("session failed")
	_, err = c.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.EqualError(t, err, "session failed")

	runner.err = nil
	runner.output = []float32{1}
	_, err = c.ClassifyImage(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err, "short output")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ClassifyImage(ctx, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifierWarnsOnClassMismatch(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := NewClassifier(&fakeRunner{}, DefaultConfig(binding(t, 2), classes()))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "class count does not match model output")
	assert.Contains(t, buf.String(), "unreachable=1")
}
