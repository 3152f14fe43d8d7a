package head

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headJSON = `{
  "layers": [
    {"name": "dense", "activation": "relu", "weights": [[1, 0, -1], [0, 1, 1]], "bias": [0, 0, 0]},
    {"name": "dropout", "type": "dropout", "rate": 0.2},
    {"name": "predictions", "activation": "linear", "weights": [[1, 0], [0, 1], [2, 0]], "bias": [0.5, -0.5]}
  ]
}`

func loadTestHead(t *testing.T) *Head {
	t.Helper()
	path := filepath.Join(t.TempDir(), "head.json")
	require.NoError(t, os.WriteFile(path, []byte(headJSON), 0o600))

	h, err := Load(path)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestLoad(t *testing.T) {
	h := loadTestHead(t)
	assert.Equal(t, 2, h.InputSize())
	assert.Equal(t, 2, h.OutputSize())
	assert.Equal(t, []string{"dense", "predictions"}, h.Layers())
}

func TestForward(t *testing.T) {
	h := loadTestHead(t)

	// hidden = relu([2, 3] x W1) = relu([2, 3, 1]) = [2, 3, 1]
	// out = [2 + 2, 3] + [0.5, -0.5] = [4.5, 2.5]
	out, err := h.Forward([]float32{2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{4.5, 2.5}, out, 1e-5)

	// hidden = relu([3, -1, -4]) = [3, 0, 0]
	out, err = h.Forward([]float32{3, -1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{3.5, -0.5}, out, 1e-5)

	_, err = h.Forward([]float32{1})
	assert.Error(t, err)
}

func TestForwardConcurrent(t *testing.T) {
	h := loadTestHead(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.Forward([]float32{2, 3})
			assert.NoError(t, err)
			assert.InDeltaSlice(t, []float32{4.5, 2.5}, out, 1e-5)
		}()
	}
	wg.Wait()
}

func TestSoftmaxHead(t *testing.T) {
	h, err := New([]Layer{{
		Activation: "softmax",
		Weights:    [][]float32{{1, 1}},
		Bias:       []float32{0, 0},
	}})
	require.NoError(t, err)
	defer h.Close()

	out, err := h.Forward([]float32{3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, out, 1e-5)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]Layer{{Weights: [][]float32{{1, 2}}, Bias: []float32{0}}})
	assert.Error(t, err, "row width must match bias")

	_, err = New([]Layer{
		{Weights: [][]float32{{1, 2}}, Bias: []float32{0, 0}},
		{Weights: [][]float32{{1}}, Bias: []float32{0}},
	})
	assert.Error(t, err, "layers must chain")

	_, err = New([]Layer{{Activation: "gelu", Weights: [][]float32{{1}}, Bias: []float32{0}}})
	assert.Error(t, err)

	_, err = New([]Layer{{Type: "conv", Weights: [][]float32{{1}}, Bias: []float32{0}}})
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
