// Package postprocess - Postprocessing utilities for classification models.
package postprocess

// Score is the confidence of a single class.
type Score struct {
	// The class index in the model output.
	Index int `json:"class_index"`
	// The human-readable label of the class.
	Label string `json:"label"`
	// The activated score of the class.
	Confidence float32 `json:"confidence"`
}

// Classification represents the result of classifying one image.
type Classification struct {
	// The label of the winning class.
	Label string `json:"prediction"`
	// The index of the winning class.
	Index int `json:"class_index"`
	// The activated score of the winning class.
	Confidence float32 `json:"confidence"`
	// The best classes, highest score first.
	Top []Score `json:"top,omitempty"`
	// Every activated score, indexed by class.
	Scores []float32 `json:"-"`
}
