package classifiers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/head"
	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
	"github.com/nvr-ai/go-classify/models/postprocess"
)

var (
	// ErrNotLoaded is returned when no model is available to classify with.
	ErrNotLoaded = errors.New("model is not loaded")
	// ErrInvalidImage marks failures caused by the uploaded image rather than the model.
	ErrInvalidImage = errors.New("invalid image")
)

// Runner executes a model on one preprocessed input tensor.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

// Classifier turns images into classifications.
//
// Classify is safe for concurrent use when the runner is.
type Classifier struct {
	runner  Runner
	pre     *preprocess.Preprocessor
	binding *model.Binding
	classes *models.ClassIndex
	head    *head.Head
	topK    int
	width   int
}

// NewClassifier creates a classifier.
//
// Arguments:
//   - runner: The model runner, created for cfg.Binding.
//   - cfg: The classifier configuration.
//
// Returns:
//   - *Classifier: The classifier.
//   - error: ErrNotLoaded without a runner, or a configuration error.
func NewClassifier(runner Runner, cfg Config) (*Classifier, error) {
	if runner == nil {
		return nil, ErrNotLoaded
	}
	if cfg.Binding == nil {
		return nil, errors.New("classifier requires a model binding")
	}

	pre, err := preprocess.NewPreprocessor(cfg.Binding.PreprocessConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid preprocessing for binding: %w", err)
	}

	width := cfg.Binding.OutputSize
	if cfg.Head != nil {
		if cfg.Head.InputSize() != cfg.Binding.OutputSize {
			return nil, fmt.Errorf(
				"head expects %d features but model output %s has %d",
				cfg.Head.InputSize(), cfg.Binding.OutputName, cfg.Binding.OutputSize,
			)
		}
		width = cfg.Head.OutputSize()
	}

	if n := cfg.Classes.Size(); n > 0 && n != width {
		unreachable := 0
		for _, i := range cfg.Classes.Indices() {
			if i >= width {
				unreachable++
			}
		}
		slog.Warn("class count does not match model output",
			slog.Int("classes", n),
			slog.Int("outputs", width),
			slog.Int("unreachable", unreachable),
		)
	}

	return &Classifier{
		runner:  runner,
		pre:     pre,
		binding: cfg.Binding,
		classes: cfg.Classes,
		head:    cfg.Head,
		topK:    cfg.TopK,
		width:   width,
	}, nil
}

// Binding returns the model binding.
func (c *Classifier) Binding() *model.Binding { return c.binding }

// Classes returns the class index.
func (c *Classifier) Classes() *models.ClassIndex { return c.classes }

// Width is the number of class scores the classifier produces.
func (c *Classifier) Width() int { return c.width }

// Classify decodes, preprocesses and classifies an uploaded image.
//
// Arguments:
//   - ctx: Cancels waiting for a runner.
//   - img: The encoded image.
//
// Returns:
//   - *postprocess.Classification: The classification.
//   - error: An error wrapping ErrInvalidImage when the image cannot be used,
//     or a model error.
func (c *Classifier) Classify(ctx context.Context, img *images.Image) (*postprocess.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := c.pre.Preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	return c.classifyTensor(ctx, res.Data)
}

// ClassifyImage classifies an already decoded image.
func (c *Classifier) ClassifyImage(ctx context.Context, img image.Image) (*postprocess.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := c.pre.PreprocessImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	return c.classifyTensor(ctx, res.Data)
}

func (c *Classifier) classifyTensor(ctx context.Context, input []float32) (*postprocess.Classification, error) {
	if len(input) != c.binding.InputSize() {
		return nil, fmt.Errorf("preprocessed %d values, model input %s takes %d",
			len(input), c.binding.InputName, c.binding.InputSize())
	}

	raw, err := c.runner.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(raw) < c.binding.OutputSize {
		return nil, fmt.Errorf("model returned %d values, expected %d", len(raw), c.binding.OutputSize)
	}
	raw = raw[:c.binding.OutputSize]

	if c.head != nil {
		if raw, err = c.head.Forward(raw); err != nil {
			return nil, err
		}
	}

	scores, err := postprocess.Activate(c.binding.Activation, raw)
	if err != nil {
		return nil, err
	}

	idx, err := postprocess.Argmax(scores)
	if err != nil {
		return nil, err
	}

	out := &postprocess.Classification{
		Label:      c.classes.Name(idx),
		Index:      idx,
		Confidence: scores[idx],
		Scores:     scores,
	}
	if c.topK > 1 {
		out.Top = postprocess.TopK(scores, c.topK)
		for i := range out.Top {
			out.Top[i].Label = c.classes.Name(out.Top[i].Index)
		}
	}

	return out, nil
}
