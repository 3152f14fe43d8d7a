// Package resnet - torchvision style ResNet classifier.
package resnet

import (
	"errors"

	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

// ImageNet channel statistics in 0-255 units.
var (
	Mean = []float32{123.675, 116.28, 103.53}
	Std  = []float32{58.395, 57.12, 57.375}
)

// ResNet is the instance of the ResNet recipe.
type ResNet struct {
	options model.BaseModel
}

// Options returns the options for the ResNet model.
func (m *ResNet) Options() model.BaseModel {
	return m.options
}

// NewModel creates a new model.
//
// Torch exports are channels first, ImageNet standardized and end in raw
// logits, so a softmax is always applied to the output.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*ResNet, error) {
	if args.Path == "" {
		return nil, errors.New("resnet: model path is required")
	}

	return &ResNet{
		options: model.BaseModel{
			Name:          model.ModelNameResNet,
			Family:        model.ModelFamilyTorch,
			Path:          args.Path,
			Width:         224,
			Height:        224,
			Channels:      3,
			Layout:        model.LayoutNCHW,
			Activation:    model.ActivationSoftmax,
			Normalization: preprocess.NormalizeStandardize,
			Mean:          append([]float32(nil), Mean...),
			Std:           append([]float32(nil), Std...),
			ColorMode:     preprocess.ColorModeRGB,
		},
	}, nil
}
