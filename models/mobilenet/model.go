// Package mobilenet - Keras MobileNetV2 transfer-learning classifier.
package mobilenet

import (
	"errors"

	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

// InputSize is the square input size MobileNetV2 was trained with.
const InputSize = 224

// MobileNetV2 is the instance of the MobileNetV2 recipe.
//
// The model takes [batch, 224, 224, 3] RGB pixels scaled to [0, 1] and ends
// in a softmax dense layer, so its output is already a probability vector.
type MobileNetV2 struct {
	options model.BaseModel
}

// Options returns the options for the MobileNetV2 model.
//
// Returns:
//   - The options for the MobileNetV2 model.
func (m *MobileNetV2) Options() model.BaseModel {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*MobileNetV2, error) {
	if args.Path == "" {
		return nil, errors.New("mobilenetv2: model path is required")
	}

	return &MobileNetV2{
		options: model.BaseModel{
			Name:          model.ModelNameMobileNetV2,
			Family:        model.ModelFamilyKeras,
			Path:          args.Path,
			Width:         InputSize,
			Height:        InputSize,
			Channels:      3,
			Layout:        model.LayoutNHWC,
			Activation:    model.ActivationAuto,
			Normalization: preprocess.NormalizeZeroToOne,
			ColorMode:     preprocess.ColorModeRGB,
		},
	}, nil
}
