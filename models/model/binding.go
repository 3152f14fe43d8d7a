package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

var (
	// ErrNoInput is returned when no model input can carry an image.
	ErrNoInput = errors.New("model has no usable image input")
	// ErrNoOutput is returned when the model declares no output.
	ErrNoOutput = errors.New("model has no output")
)

// Port describes one declared model input or output. Dynamic dimensions are
// reported as -1 (or 0 by some exporters).
type Port struct {
	Name  string
	Dims  []int64
	Float bool
}

func (p Port) String() string {
	dims := make([]string, len(p.Dims))
	for i, d := range p.Dims {
		if d <= 0 {
			dims[i] = "?"
		} else {
			dims[i] = fmt.Sprintf("%d", d)
		}
	}
	return fmt.Sprintf("%s[%s]", p.Name, strings.Join(dims, ","))
}

// Binding is a recipe resolved against the shapes a model file declares.
type Binding struct {
	Model         BaseModel
	InputName     string
	OutputName    string
	InputShape    []int64
	OutputShape   []int64
	Layout        Layout
	Width         int
	Height        int
	Channels      int
	OutputSize    int
	Activation    Activation
	Interpolation images.Interpolation
	Resizer       images.Resizer
	// Notes records every inference the binding had to make.
	Notes []string
}

// InputSize is the number of float32 values in the bound input tensor.
func (b *Binding) InputSize() int {
	return b.Width * b.Height * b.Channels
}

// PreprocessConfig derives the preprocessing configuration for the binding.
func (b *Binding) PreprocessConfig() *preprocess.ModelConfig {
	order := preprocess.ChannelOrderHWC
	if b.Layout == LayoutNCHW {
		order = preprocess.ChannelOrderCHW
	}

	colorMode := b.Model.ColorMode
	if b.Channels == 1 {
		colorMode = preprocess.ColorModeGrayscale
	}

	return &preprocess.ModelConfig{
		Name:              string(b.Model.Name),
		InputWidth:        b.Width,
		InputHeight:       b.Height,
		InputChannels:     b.Channels,
		NormalizationType: b.Model.Normalization,
		MeanValues:        b.Model.Mean,
		StdValues:         b.Model.Std,
		ChannelOrder:      order,
		ColorMode:         colorMode,
		Interpolation:     b.Interpolation,
		Resizer:           b.Resizer,
	}
}

// Resolve binds a recipe to the declared inputs and outputs of a model file.
//
// Exported models rarely agree on names, batch dimensions or layout, so
// Resolve fills every gap the file leaves: it picks the rank-4 image input and the
// first float output, replaces dynamic dimensions, detects NHWC vs NCHW and lets a
// fixed spatial size in the model win over the recipe default.
//
// Arguments:
//   - base: The recipe defaults.
//   - o: Explicit overrides from configuration.
//   - inputs: The declared model inputs.
//   - outputs: The declared model outputs.
//
// Returns:
//   - *Binding: The resolved binding.
//   - error: ErrNoInput, ErrNoOutput or a shape conflict.
func Resolve(base BaseModel, o Overrides, inputs, outputs []Port) (*Binding, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	b := &Binding{
		Model:         base,
		Activation:    base.Activation,
		Interpolation: o.Interpolation,
		Resizer:       o.Resizer,
	}
	if o.Activation != "" {
		b.Activation = o.Activation
	}
	if b.Activation == "" {
		b.Activation = ActivationAuto
	}

	in, err := selectInput(inputs, o.InputName, b)
	if err != nil {
		return nil, err
	}
	if err := b.bindInput(in, o); err != nil {
		return nil, err
	}

	out, err := selectOutput(outputs, o.OutputName)
	if err != nil {
		return nil, err
	}
	if err := b.bindOutput(out); err != nil {
		return nil, err
	}

	return b, nil
}

func selectInput(inputs []Port, name string, b *Binding) (Port, error) {
	if len(inputs) == 0 {
		return Port{}, ErrNoInput
	}
	if name != "" {
		for _, p := range inputs {
			if p.Name != name {
				continue
			}
			if len(p.Dims) != 4 {
				return Port{}, fmt.Errorf("%w: input %s is not rank 4", ErrNoInput, p)
			}
			return p, nil
		}
		return Port{}, fmt.Errorf("input %q not found in model (inputs: %v)", name, inputs)
	}

	var floats []Port
	for _, p := range inputs {
		if p.Float {
			floats = append(floats, p)
		}
	}
	if len(floats) == 1 && len(floats[0].Dims) == 4 {
		if len(inputs) > 1 {
			b.Notes = append(b.Notes, fmt.Sprintf("selected float input %s out of %d", floats[0], len(inputs)))
		}
		return floats[0], nil
	}
	for _, p := range inputs {
		if len(p.Dims) == 4 {
			b.Notes = append(b.Notes, fmt.Sprintf("selected first rank-4 input %s", p))
			return p, nil
		}
	}

	return Port{}, fmt.Errorf("%w: no rank-4 input among %v", ErrNoInput, inputs)
}

func selectOutput(outputs []Port, name string) (Port, error) {
	if len(outputs) == 0 {
		return Port{}, ErrNoOutput
	}
	if name != "" {
		for _, p := range outputs {
			if p.Name == name {
				return p, nil
			}
		}
		return Port{}, fmt.Errorf("output %q not found in model (outputs: %v)", name, outputs)
	}
	for _, p := range outputs {
		if p.Float {
			return p, nil
		}
	}
	return outputs[0], nil
}

func detectLayout(dims []int64) Layout {
	isChannels := func(d int64) bool { return d == 1 || d == 3 }
	switch {
	case isChannels(dims[3]) && !isChannels(dims[1]):
		return LayoutNHWC
	case isChannels(dims[1]) && !isChannels(dims[3]):
		return LayoutNCHW
	case isChannels(dims[3]):
		return LayoutNHWC
	}
	return LayoutAuto
}

func (b *Binding) bindInput(in Port, o Overrides) error {
	dims := in.Dims
	b.InputName = in.Name

	if dims[0] > 1 {
		return fmt.Errorf("input %s has fixed batch size %d, only 1 is supported", in, dims[0])
	}
	if dims[0] <= 0 {
		b.Notes = append(b.Notes, fmt.Sprintf("dynamic batch in %s, using 1", in))
	}

	layout := o.Layout
	if layout == "" || layout == LayoutAuto {
		layout = detectLayout(dims)
		if layout == LayoutAuto {
			layout = b.Model.Layout
			if layout == "" || layout == LayoutAuto {
				layout = LayoutNHWC
			}
			b.Notes = append(b.Notes, fmt.Sprintf("layout of %s not detectable, using %s", in, layout))
		}
	}
	b.Layout = layout

	var c, h, w int64
	if layout == LayoutNCHW {
		c, h, w = dims[1], dims[2], dims[3]
	} else {
		h, w, c = dims[1], dims[2], dims[3]
	}

	pick := func(dim string, declared int64, override, recipe int) (int, error) {
		if declared > 0 {
			if override > 0 && int64(override) != declared {
				return 0, fmt.Errorf("%s override %d conflicts with model input %s", dim, override, in)
			}
			return int(declared), nil
		}
		if override > 0 {
			return override, nil
		}
		if recipe > 0 {
			b.Notes = append(b.Notes, fmt.Sprintf("dynamic %s in %s, using %d", dim, in, recipe))
			return recipe, nil
		}
		return 0, fmt.Errorf("dynamic %s in %s and no default size", dim, in)
	}

	var err error
	if b.Height, err = pick("height", h, o.Height, b.Model.Height); err != nil {
		return err
	}
	if b.Width, err = pick("width", w, o.Width, b.Model.Width); err != nil {
		return err
	}
	if b.Channels, err = pick("channels", c, 0, b.Model.Channels); err != nil {
		return err
	}
	if b.Channels != 1 && b.Channels != 3 {
		return fmt.Errorf("input %s has %d channels, expected 1 or 3", in, b.Channels)
	}

	if layout == LayoutNCHW {
		b.InputShape = []int64{1, int64(b.Channels), int64(b.Height), int64(b.Width)}
	} else {
		b.InputShape = []int64{1, int64(b.Height), int64(b.Width), int64(b.Channels)}
	}

	return nil
}

func (b *Binding) bindOutput(out Port) error {
	b.OutputName = out.Name

	if len(out.Dims) == 0 {
		return fmt.Errorf("output %s is a scalar", out)
	}

	shape := make([]int64, len(out.Dims))
	size := int64(1)
	for i, d := range out.Dims {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0 && len(out.Dims) > 1:
			shape[i] = 1
		default:
			return fmt.Errorf("output %s has dynamic dimension %d", out, i)
		}
		if i > 0 || len(out.Dims) == 1 {
			size *= shape[i]
		}
	}
	if len(out.Dims) > 1 && shape[0] != 1 {
		return fmt.Errorf("output %s has fixed batch size %d, only 1 is supported", out, shape[0])
	}

	b.OutputShape = shape
	b.OutputSize = int(size)
	return nil
}
