package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/providers"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/model"
)

// Replaced in tests so the commands run without the ONNX Runtime library.
var (
	openEngine   = loadEngine
	buildEngine  = newEngine
	inspectModel = readModelInfo
)

// loadEngine loads the class indices and builds the engine the config
// describes. A class index that cannot be read is logged and replaced by an
// empty one, so predictions fall back to "Unknown Class (i)" labels.
func loadEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (inference.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	classes, err := models.LoadClassIndex(cfg.Model.ClassIndices)
	if err != nil {
		logger.Error("failed to load class indices, using an empty mapping",
			slog.String("path", cfg.Model.ClassIndices),
			slog.Any("error", err))
		classes = models.NewClassIndexFromLabels(nil)
	}

	return buildEngine(ctx, cfg, classes)
}

// newEngine builds the ONNX Runtime engine for cfg around classes.
func newEngine(ctx context.Context, cfg *config.Config, classes *models.ClassIndex) (inference.Engine, error) {
	pcfg, err := cfg.ONNX.ProviderConfig()
	if err != nil {
		return nil, err
	}

	return inference.NewEngineBuilder().
		WithProvider(pcfg).
		WithModel(cfg.Model.Args()).
		WithClassifier(inference.ClassifierOptions{
			Classes:  classes,
			HeadPath: cfg.Model.Head,
			TopK:     cfg.Model.TopK,
			PoolSize: cfg.Model.PoolSize,
			Warmup:   cfg.Model.Warmup,
		}).
		Build(ctx)
}

// readModelInfo introspects the model file without binding it.
func readModelInfo(cfg *config.Config) (*providers.ModelInfo, error) {
	if err := providers.Initialize(cfg.ONNX.LibraryPath); err != nil {
		return nil, err
	}
	defer providers.Destroy()

	return providers.Introspect(cfg.Model.Path)
}

// inputSize returns the width and height of the bound image input.
func inputSize(info inference.Info) (int, int, error) {
	s := info.InputShape
	if len(s) != 4 {
		return 0, 0, fmt.Errorf("unexpected input shape %v", s)
	}
	if info.Layout == model.LayoutNCHW {
		return int(s[3]), int(s[2]), nil
	}
	return int(s[2]), int(s[1]), nil
}
