// Package generic - Recipe for image classifiers of unknown origin.
package generic

import (
	"errors"

	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

// Generic binds any image classifier from the shapes its file declares.
type Generic struct {
	options model.BaseModel
}

// Options returns the options for the generic model.
func (m *Generic) Options() model.BaseModel {
	return m.options
}

// NewModel creates a new model. Layout is detected from the input shape and
// the output is softmaxed unless it already is a probability vector.
func NewModel(args model.NewModelArgs) (*Generic, error) {
	if args.Path == "" {
		return nil, errors.New("generic: model path is required")
	}

	return &Generic{
		options: model.BaseModel{
			Name:          model.ModelNameGeneric,
			Family:        model.ModelFamilyGeneric,
			Path:          args.Path,
			Width:         224,
			Height:        224,
			Channels:      3,
			Layout:        model.LayoutAuto,
			Activation:    model.ActivationAuto,
			Normalization: preprocess.NormalizeZeroToOne,
			ColorMode:     preprocess.ColorModeRGB,
		},
	}, nil
}
