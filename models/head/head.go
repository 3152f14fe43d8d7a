// Package head - Dense classification heads evaluated with gorgonia.
//
// A head is the stack of fully connected layers a transfer-learning
// classifier puts on top of a pooled backbone (for example
// GlobalAveragePooling -> Dense(128, relu) -> Dropout -> Dense(n, softmax)).
// When the exported backbone stops at the pooled features the head's weights
// are loaded from a JSON file and evaluated here.
package head

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer is one layer of a head file.
type Layer struct {
	Name string `json:"name"`
	// Type is "dense" (the default) or "dropout".
	Type       string `json:"type"`
	Activation string `json:"activation"`
	// Weights are laid out [in][out].
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
	// Rate is the dropout rate. Dropout is the identity at inference.
	Rate float64 `json:"rate"`
}

// File is the on-disk format of a head.
type File struct {
	Layers []Layer `json:"layers"`
}

// Head evaluates a stack of dense layers. Safe for concurrent use.
type Head struct {
	mu      sync.Mutex
	g       *G.ExprGraph
	input   *G.Node
	output  *G.Node
	vm      G.VM
	inSize  int
	outSize int
	layers  []string
}

// Load reads a head file.
//
// Arguments:
//   - path: The JSON head file.
//
// Returns:
//   - *Head: The compiled head.
//   - error: An error if the file cannot be read or describes an invalid head.
func Load(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read head: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse head %s: %w", path, err)
	}

	return New(f.Layers)
}

// New compiles the layers into a gorgonia graph.
func New(layers []Layer) (*Head, error) {
	dense := make([]Layer, 0, len(layers))
	for _, l := range layers {
		switch strings.ToLower(l.Type) {
		case "", "dense":
			dense = append(dense, l)
		case "dropout":
		default:
			return nil, fmt.Errorf("layer %q: unsupported type %q", l.Name, l.Type)
		}
	}
	if len(dense) == 0 {
		return nil, fmt.Errorf("head has no dense layers")
	}

	h := &Head{g: G.NewGraph()}
	h.inSize = len(dense[0].Weights)
	if h.inSize == 0 {
		return nil, fmt.Errorf("layer %q has no weights", dense[0].Name)
	}

	h.input = G.NewMatrix(h.g, tensor.Float32, G.WithShape(1, h.inSize), G.WithName("features"))

	x := h.input
	in := h.inSize
	for i, l := range dense {
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("dense_%d", i)
		}

		var err error
		if x, err = h.dense(x, in, name, l); err != nil {
			return nil, err
		}
		in = len(l.Bias)
		h.layers = append(h.layers, name)
	}

	h.output = x
	h.outSize = in
	h.vm = G.NewTapeMachine(h.g)

	return h, nil
}

func (h *Head) dense(x *G.Node, in int, name string, l Layer) (*G.Node, error) {
	if len(l.Weights) != in {
		return nil, fmt.Errorf("layer %q: expected %d weight rows, got %d", name, in, len(l.Weights))
	}
	out := len(l.Bias)
	if out == 0 {
		return nil, fmt.Errorf("layer %q has no bias", name)
	}

	flat := make([]float32, 0, in*out)
	for r, row := range l.Weights {
		if len(row) != out {
			return nil, fmt.Errorf("layer %q: weight row %d has %d columns, bias has %d", name, r, len(row), out)
		}
		flat = append(flat, row...)
	}

	w := G.NewMatrix(h.g, tensor.Float32,
		G.WithShape(in, out),
		G.WithName(name+"/kernel"),
		G.WithValue(tensor.New(tensor.WithShape(in, out), tensor.WithBacking(flat))),
	)
	b := G.NewMatrix(h.g, tensor.Float32,
		G.WithShape(1, out),
		G.WithName(name+"/bias"),
		G.WithValue(tensor.New(tensor.WithShape(1, out), tensor.WithBacking(append([]float32(nil), l.Bias...)))),
	)

	y, err := G.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", name, err)
	}
	if y, err = G.Add(y, b); err != nil {
		return nil, fmt.Errorf("layer %q: %w", name, err)
	}

	switch strings.ToLower(l.Activation) {
	case "", "linear":
		return y, nil
	case "relu":
		y, err = G.Rectify(y)
	case "sigmoid":
		y, err = G.Sigmoid(y)
	case "tanh":
		y, err = G.Tanh(y)
	case "softmax":
		y, err = G.SoftMax(y)
	default:
		return nil, fmt.Errorf("layer %q: unsupported activation %q", name, l.Activation)
	}
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", name, err)
	}
	return y, nil
}

// InputSize is the feature width the head expects.
func (h *Head) InputSize() int { return h.inSize }

// OutputSize is the number of scores the head produces.
func (h *Head) OutputSize() int { return h.outSize }

// Layers returns the names of the evaluated layers.
func (h *Head) Layers() []string { return append([]string(nil), h.layers...) }

// Forward evaluates the head on one feature vector.
//
// Arguments:
//   - features: The backbone output, exactly InputSize values.
//
// Returns:
//   - []float32: OutputSize scores.
//   - error: An error on a size mismatch or graph failure.
func (h *Head) Forward(features []float32) ([]float32, error) {
	if len(features) != h.inSize {
		return nil, fmt.Errorf("head expects %d features, got %d", h.inSize, len(features))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.vm.Reset()

	in := tensor.New(tensor.WithShape(1, h.inSize), tensor.WithBacking(append([]float32(nil), features...)))
	if err := G.Let(h.input, in); err != nil {
		return nil, fmt.Errorf("failed to bind features: %w", err)
	}
	if err := h.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("failed to evaluate head: %w", err)
	}

	data, ok := h.output.Value().Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected head output %T", h.output.Value().Data())
	}

	return append([]float32(nil), data...), nil
}

// Close releases the tape machine.
func (h *Head) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vm.Close()
}
