// Package model - Definitions for classification model recipes and their bindings.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

// Family is the family of models a recipe belongs to.
type Family string

const (
	// ModelFamilyKeras are models exported from Keras / TensorFlow (channels last).
	ModelFamilyKeras Family = "keras"
	// ModelFamilyTorch are models exported from PyTorch (channels first).
	ModelFamilyTorch Family = "torch"
	// ModelFamilyGeneric are models with no known origin.
	ModelFamilyGeneric Family = "generic"
)

// Name is the unique identifier of a model recipe.
type Name string

const (
	// ModelNameMobileNetV2 is a Keras MobileNetV2 transfer-learning classifier.
	ModelNameMobileNetV2 Name = "mobilenetv2"
	// ModelNameResNet is a torchvision style ResNet classifier.
	ModelNameResNet Name = "resnet"
	// ModelNameGeneric binds any image classifier from its declared shapes.
	ModelNameGeneric Name = "generic"
)

// Layout is the memory layout of the image input tensor.
type Layout string

const (
	// LayoutAuto detects the layout from the model's input shape.
	LayoutAuto Layout = "auto"
	// LayoutNHWC is [batch, height, width, channels].
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is [batch, channels, height, width].
	LayoutNCHW Layout = "nchw"
)

// Valid reports whether the layout is known.
func (l Layout) Valid() bool {
	switch l {
	case LayoutAuto, LayoutNHWC, LayoutNCHW, "":
		return true
	}
	return false
}

// Activation is the function turning raw model output into class scores.
type Activation string

const (
	// ActivationAuto keeps probability vectors and softmaxes anything else.
	ActivationAuto Activation = "auto"
	// ActivationSoftmax always applies softmax.
	ActivationSoftmax Activation = "softmax"
	// ActivationSigmoid applies an element-wise sigmoid (multi-label heads).
	ActivationSigmoid Activation = "sigmoid"
	// ActivationNone uses the raw output as scores.
	ActivationNone Activation = "none"
)

// Valid reports whether the activation is known.
func (a Activation) Valid() bool {
	switch a {
	case ActivationAuto, ActivationSoftmax, ActivationSigmoid, ActivationNone, "":
		return true
	}
	return false
}

// BaseModel is the recipe every model provides: the defaults used when the
// model file does not pin a value down itself.
type BaseModel struct {
	Name          Name
	Family        Family
	Path          string
	Width         int
	Height        int
	Channels      int
	Layout        Layout
	Activation    Activation
	Normalization preprocess.NormalizationType
	Mean          []float32
	Std           []float32
	ColorMode     preprocess.ColorMode
}

// Model is a classification recipe bound to a model file path.
type Model interface {
	Options() BaseModel
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name Name   `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	// Overrides applied on top of the recipe and the introspected shapes.
	Overrides Overrides `json:"overrides" yaml:"overrides"`
}

// Overrides pin binding decisions that would otherwise be inferred.
type Overrides struct {
	InputName     string               `json:"input_name"    yaml:"input_name"`
	OutputName    string               `json:"output_name"   yaml:"output_name"`
	Layout        Layout               `json:"layout"        yaml:"layout"`
	Activation    Activation           `json:"activation"    yaml:"activation"`
	Width         int                  `json:"width"         yaml:"width"`
	Height        int                  `json:"height"        yaml:"height"`
	Interpolation images.Interpolation `json:"interpolation" yaml:"interpolation"`
	Resizer       images.Resizer       `json:"resizer"       yaml:"resizer"`
}

// Validate checks the override values.
func (o Overrides) Validate() error {
	if !o.Layout.Valid() {
		return fmt.Errorf("unsupported layout: %q", o.Layout)
	}
	if !o.Activation.Valid() {
		return fmt.Errorf("unsupported activation: %q", o.Activation)
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("invalid input size override: %dx%d", o.Width, o.Height)
	}
	if o.Interpolation != "" && !o.Interpolation.Valid() {
		return fmt.Errorf("unsupported interpolation: %q", o.Interpolation)
	}
	if _, err := images.ParseResizer(string(o.Resizer)); err != nil {
		return err
	}
	return nil
}
