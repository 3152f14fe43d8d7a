// Package classifiers - Image classification on top of a model runner.
package classifiers

import (
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/head"
	"github.com/nvr-ai/go-classify/models/model"
)

// DefaultTopK reports only the winning class, the shape of a /predict reply.
const DefaultTopK = 1

// Config configures a classifier.
type Config struct {
	// Binding is the model input/output the runner was created for.
	Binding *model.Binding
	// Classes maps output indices to labels.
	Classes *models.ClassIndex
	// Head, when set, turns backbone features into class scores.
	Head *head.Head
	// TopK is the number of ranked classes to report. Values <= 1 report
	// only the winning class.
	TopK int
}

// DefaultConfig returns the configuration with the default TopK.
//
// Arguments:
//   - binding: The resolved model binding.
//   - classes: The class index.
//
// Returns:
//   - Config: The configuration.
func DefaultConfig(binding *model.Binding, classes *models.ClassIndex) Config {
	return Config{
		Binding: binding,
		Classes: classes,
		TopK:    DefaultTopK,
	}
}
