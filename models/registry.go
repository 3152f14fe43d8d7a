// Package models - Registry of classification recipes and class index files.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-classify/models/generic"
	"github.com/nvr-ai/go-classify/models/mobilenet"
	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/resnet"
)

// Names lists every recipe NewModel accepts.
var Names = []model.Name{
	model.ModelNameMobileNetV2,
	model.ModelNameResNet,
	model.ModelNameGeneric,
}

// NewModel creates a new classification recipe based on the specified name.
//
// Arguments:
//   - args: Configuration parameters specifying the recipe and model location.
//
// Returns:
//   - model.Model: The recipe bound to the model path.
//   - error: An error if the recipe is unknown or the arguments are invalid.
//
// Example:
//
//	m, err := models.NewModel(model.NewModelArgs{
//	    Name: model.ModelNameMobileNetV2,
//	    Path: "trained_model/disease.onnx",
//	})
func NewModel(args model.NewModelArgs) (model.Model, error) {
	if err := args.Overrides.Validate(); err != nil {
		return nil, err
	}

	switch args.Name {
	case model.ModelNameMobileNetV2, "":
		m, err := mobilenet.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameResNet:
		m, err := resnet.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameGeneric:
		m, err := generic.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}
