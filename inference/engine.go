package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference/classifiers"
	"github.com/nvr-ai/go-classify/inference/providers"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/head"
	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/postprocess"
)

// Engine defines the interface for classification engines.
type Engine interface {
	// Classify decodes and classifies an uploaded image.
	Classify(ctx context.Context, img *images.Image) (*postprocess.Classification, error)
	// ClassifyImage classifies a decoded image.
	ClassifyImage(ctx context.Context, img image.Image) (*postprocess.Classification, error)
	// Info describes the loaded model and how it was bound.
	Info() Info
	// Stats returns the inference counters.
	Stats() Stats
	// Close releases every session.
	Close() error
}

// Info describes a loaded engine.
type Info struct {
	Model       model.Name                `json:"model"`
	Path        string                    `json:"path"`
	Backend     providers.ProviderBackend `json:"backend"`
	InputName   string                    `json:"input_name"`
	InputShape  []int64                   `json:"input_shape"`
	OutputName  string                    `json:"output_name"`
	OutputShape []int64                   `json:"output_shape"`
	Layout      model.Layout              `json:"layout"`
	Activation  model.Activation          `json:"activation"`
	Classes     int                       `json:"classes"`
	Outputs     int                       `json:"outputs"`
	Head        []string                  `json:"head,omitempty"`
	PoolSize    int                       `json:"pool_size"`
	Notes       []string                  `json:"notes,omitempty"`
	ModelInfo   *providers.ModelInfo      `json:"model_info,omitempty"`
}

// Stats are the counters of every session of an engine.
type Stats struct {
	Total    SessionStats   `json:"total"`
	Sessions []SessionStats `json:"sessions"`
}

// ClassifierOptions configure the classifier an engine builds.
type ClassifierOptions struct {
	// Classes maps output indices to labels. Required.
	Classes *models.ClassIndex
	// HeadPath is an optional dense head file applied when the model output
	// width differs from the class count.
	HeadPath string
	// TopK is the number of ranked classes to report.
	TopK int
	// PoolSize is the number of sessions to create. Defaults to 1.
	PoolSize int
	// Warmup is the number of inferences run on a black image before the
	// engine is returned.
	Warmup int
}

// EngineBuilder builds an engine with a fluent API. The first error is kept
// and returned by Build.
type EngineBuilder struct {
	providerCfg providers.Config
	provider    providers.ExecutionProvider
	model       model.Model
	overrides   model.Overrides
	classifier  *ClassifierOptions
	err         error

	initialize  func(libPath string) error
	destroy     func() error
	introspect  func(path string) (*providers.ModelInfo, error)
	openSession func(providers.ExecutionProvider, providers.NewSessionArgs) (TensorSession, error)
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		initialize: providers.Initialize,
		destroy:    providers.Destroy,
		introspect: providers.Introspect,
		openSession: func(p providers.ExecutionProvider, args providers.NewSessionArgs) (TensorSession, error) {
			s, err := providers.NewSession(p, args)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// WithProvider sets the provider for the engine.
//
// Arguments:
//   - args: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(args providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProvider(args)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	b.providerCfg = args
	return b
}

// WithModel sets the model recipe for the engine.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}

	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	b.overrides = args.Overrides
	return b
}

// WithClassifier sets the classifier options for the engine.
//
// Arguments:
//   - opts: The classifier options.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithClassifier(opts ClassifierOptions) *EngineBuilder {
	if b.HasError() {
		return b
	}

	if opts.Classes == nil {
		b.err = errors.New("classifier requires a class index")
		return b
	}
	if opts.PoolSize < 0 || opts.Warmup < 0 {
		b.err = fmt.Errorf("invalid pool size %d or warmup %d", opts.PoolSize, opts.Warmup)
		return b
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 1
	}
	b.classifier = &opts
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild(ctx context.Context) Engine {
	e, err := b.Build(ctx)
	if err != nil {
		panic(err)
	}
	return e
}

// Build initializes the runtime, binds the model, opens the session pool and
// warms it up.
//
// Arguments:
//   - ctx: Cancels the warmup.
//
// Returns:
//   - Engine: The engine.
//   - error: The first builder error, or any loading error.
func (b *EngineBuilder) Build(ctx context.Context) (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.provider == nil {
		return nil, errors.New("provider not configured")
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}
	if b.classifier == nil {
		return nil, errors.New("classifier not configured")
	}

	if err := b.initialize(b.providerCfg.LibraryPath); err != nil {
		return nil, err
	}

	e, err := b.build(ctx)
	if err != nil {
		if derr := b.destroy(); derr != nil {
			slog.Warn("failed to destroy onnxruntime environment", slog.Any("error", derr))
		}
		return nil, err
	}
	return e, nil
}

func (b *EngineBuilder) build(ctx context.Context) (*engine, error) {
	opts := b.model.Options()
	copts := b.classifier

	modelInfo, err := b.introspect(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", opts.Path, err)
	}

	binding, err := model.Resolve(opts, b.overrides, modelInfo.InputPorts(), modelInfo.OutputPorts())
	if err != nil {
		return nil, fmt.Errorf("failed to bind model %s: %w", opts.Path, err)
	}
	for _, note := range binding.Notes {
		slog.Info("model binding", slog.String("model", opts.Path), slog.String("note", note))
	}

	var h *head.Head
	if copts.HeadPath != "" {
		if binding.OutputSize == copts.Classes.Size() {
			slog.Info("model output matches the class count, head not used",
				slog.String("head", copts.HeadPath),
				slog.Int("outputs", binding.OutputSize),
			)
		} else if h, err = head.Load(copts.HeadPath); err != nil {
			return nil, err
		}
	}

	closeHead := func() {
		if h != nil {
			h.Close()
		}
	}

	sessions := make([]*ProfiledSession, 0, copts.PoolSize)
	runners := make([]Runner, 0, copts.PoolSize)
	for i := 0; i < copts.PoolSize; i++ {
		s, err := b.openSession(b.provider, providers.NewSessionArgs{
			ModelPath:    opts.Path,
			InputName:    binding.InputName,
			InputShape:   binding.InputShape,
			OutputName:   binding.OutputName,
			OutputShape:  binding.OutputShape,
			Optimization: b.providerCfg.Optimization,
		})
		if err != nil {
			for _, ps := range sessions {
				ps.Close()
			}
			closeHead()
			return nil, fmt.Errorf("failed to open session %d: %w", i, err)
		}
		ps := NewProfiledSession(s)
		sessions = append(sessions, ps)
		runners = append(runners, ps)
	}

	pool, err := NewPool(runners...)
	if err != nil {
		closeHead()
		return nil, err
	}

	ccfg := classifiers.DefaultConfig(binding, copts.Classes)
	ccfg.Head = h
	if copts.TopK > 0 {
		ccfg.TopK = copts.TopK
	}
	clf, err := classifiers.NewClassifier(pool, ccfg)
	if err != nil {
		pool.Close()
		closeHead()
		return nil, err
	}

	e := &engine{
		pool:       pool,
		sessions:   sessions,
		classifier: clf,
		head:       h,
		destroy:    b.destroy,
		info: Info{
			Model:       opts.Name,
			Path:        opts.Path,
			Backend:     b.provider.Backend(),
			InputName:   binding.InputName,
			InputShape:  binding.InputShape,
			OutputName:  binding.OutputName,
			OutputShape: binding.OutputShape,
			Layout:      binding.Layout,
			Activation:  binding.Activation,
			Classes:     copts.Classes.Len(),
			Outputs:     clf.Width(),
			PoolSize:    pool.Size(),
			Notes:       binding.Notes,
			ModelInfo:   modelInfo,
		},
	}
	if h != nil {
		e.info.Head = h.Layers()
	}

	if err := e.warmup(ctx, copts.Warmup); err != nil {
		e.closeSessions()
		return nil, err
	}

	return e, nil
}

// engine implements the Engine interface.
type engine struct {
	info       Info
	pool       *Pool
	sessions   []*ProfiledSession
	classifier *classifiers.Classifier
	head       *head.Head
	destroy    func() error
	closeOnce  sync.Once
	closeErr   error
}

func (e *engine) warmup(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}

	b := e.classifier.Binding()
	black := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i := 0; i < n; i++ {
		if _, err := e.classifier.ClassifyImage(ctx, black); err != nil {
			return fmt.Errorf("warmup inference %d failed: %w", i, err)
		}
	}
	for _, s := range e.sessions {
		s.ResetStats()
	}

	slog.Debug("engine warmed up", slog.Int("iterations", n))
	return nil
}

// Classify classifies an uploaded image.
func (e *engine) Classify(ctx context.Context, img *images.Image) (*postprocess.Classification, error) {
	return e.classifier.Classify(ctx, img)
}

// ClassifyImage classifies a decoded image.
func (e *engine) ClassifyImage(ctx context.Context, img image.Image) (*postprocess.Classification, error) {
	return e.classifier.ClassifyImage(ctx, img)
}

// Info describes the engine.
func (e *engine) Info() Info {
	return e.info
}

// Stats returns the counters of every session.
func (e *engine) Stats() Stats {
	var st Stats
	for _, s := range e.sessions {
		ss := s.Stats()
		st.Sessions = append(st.Sessions, ss)
		st.Total = st.Total.Add(ss)
	}
	return st
}

func (e *engine) closeSessions() error {
	err := e.pool.Close()
	if e.head != nil {
		err = errors.Join(err, e.head.Close())
	}
	return err
}

// Close releases the sessions and the runtime environment.
func (e *engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = errors.Join(e.closeSessions(), e.destroy())
	})
	return e.closeErr
}
