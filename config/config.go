// Package config - Service configuration loaded from file, environment and .env.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference/classifiers"
	"github.com/nvr-ai/go-classify/inference/providers"
	"github.com/nvr-ai/go-classify/logging"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/model"
)

// EnvPrefix prefixes every environment variable the service reads, for
// example CLASSIFY_SERVER_PORT or CLASSIFY_MODEL_PATH.
const EnvPrefix = "CLASSIFY"

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Model   ModelConfig   `mapstructure:"model"   yaml:"model"`
	ONNX    ONNXConfig    `mapstructure:"onnx"    yaml:"onnx"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// File is the config file that was read, empty when none was.
	File string `mapstructure:"-" yaml:"-"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             yaml:"host"`
	Port            int           `mapstructure:"port"             yaml:"port"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	// MaxImagePixels rejects uploads whose header declares a larger width*height.
	MaxImagePixels  int64         `mapstructure:"max_image_pixels" yaml:"max_image_pixels"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"     yaml:"cors_origins"`
	// ProfileInterval logs a runtime profile this often. 0 disables it.
	ProfileInterval time.Duration `mapstructure:"profile_interval" yaml:"profile_interval"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ModelConfig selects the model file, its recipe and the class indices.
type ModelConfig struct {
	Name          string `mapstructure:"name"          yaml:"name"`
	Path          string `mapstructure:"path"          yaml:"path"`
	ClassIndices  string `mapstructure:"class_indices" yaml:"class_indices"`
	Head          string `mapstructure:"head"          yaml:"head"`
	TopK          int    `mapstructure:"top_k"         yaml:"top_k"`
	PoolSize      int    `mapstructure:"pool_size"     yaml:"pool_size"`
	Warmup        int    `mapstructure:"warmup"        yaml:"warmup"`
	InputName     string `mapstructure:"input_name"    yaml:"input_name"`
	OutputName    string `mapstructure:"output_name"   yaml:"output_name"`
	Layout        string `mapstructure:"layout"        yaml:"layout"`
	Activation    string `mapstructure:"activation"    yaml:"activation"`
	Width         int    `mapstructure:"width"         yaml:"width"`
	Height        int    `mapstructure:"height"        yaml:"height"`
	Interpolation string `mapstructure:"interpolation" yaml:"interpolation"`
	Resizer       string `mapstructure:"resizer"       yaml:"resizer"`
}

// Args returns the recipe arguments for models.NewModel.
func (m ModelConfig) Args() model.NewModelArgs {
	return model.NewModelArgs{
		Name: model.Name(strings.ToLower(m.Name)),
		Path: m.Path,
		Overrides: model.Overrides{
			InputName:     m.InputName,
			OutputName:    m.OutputName,
			Layout:        model.Layout(strings.ToLower(m.Layout)),
			Activation:    model.Activation(strings.ToLower(m.Activation)),
			Width:         m.Width,
			Height:        m.Height,
			Interpolation: images.Interpolation(strings.ToLower(m.Interpolation)),
			Resizer:       images.Resizer(strings.ToLower(m.Resizer)),
		},
	}
}

// ONNXConfig configures the runtime library and execution provider.
type ONNXConfig struct {
	Backend        string `mapstructure:"backend"          yaml:"backend"`
	LibraryPath    string `mapstructure:"library_path"     yaml:"library_path"`
	Optimization   string `mapstructure:"optimization"     yaml:"optimization"`
	IntraOpThreads int    `mapstructure:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int    `mapstructure:"inter_op_threads" yaml:"inter_op_threads"`
	DeviceID       int    `mapstructure:"device_id"        yaml:"device_id"`
}

// ProviderConfig converts the section into a provider configuration.
//
// Returns:
//   - providers.Config: The provider configuration.
//   - error: An unknown backend or optimization level.
func (o ONNXConfig) ProviderConfig() (providers.Config, error) {
	backend, err := providers.ParseBackend(o.Backend)
	if err != nil {
		return providers.Config{}, err
	}
	level, err := providers.ParseGraphOptimizationLevel(o.Optimization)
	if err != nil {
		return providers.Config{}, err
	}

	opt := providers.DefaultOptimizationConfig()
	opt.GraphOptimizationLevel = level
	if o.IntraOpThreads > 0 {
		opt.IntraOpNumThreads = o.IntraOpThreads
	}
	if o.InterOpThreads > 0 {
		opt.InterOpNumThreads = o.InterOpThreads
	}

	cfg := providers.Config{
		Backend:      backend,
		Optimization: &opt,
		LibraryPath:  o.LibraryPath,
	}
	if backend == providers.CUDAProviderBackend {
		cfg.Options = providers.CUDAOptions{
			DeviceID:              o.DeviceID,
			DoCopyInDefaultStream: true,
			CudnnConvAlgoSearch:   2,
		}
	}
	return cfg, nil
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "",
			Port:            5000,
			MaxUploadBytes:  10 << 20,
			MaxImagePixels:  images.DefaultMaxPixels,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Model: ModelConfig{
			Name:         string(model.ModelNameMobileNetV2),
			Path:         filepath.Join("trained_model", "disease.onnx"),
			ClassIndices: "class_indices.json",
			TopK:         classifiers.DefaultTopK,
			PoolSize:     1,
			Warmup:       1,
			Layout:       string(model.LayoutAuto),
			Activation:   string(model.ActivationAuto),
			Resizer:      string(images.ResizerNative),
		},
		ONNX: ONNXConfig{
			Backend:      string(providers.CPUProviderBackend),
			Optimization: "extended",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.max_image_pixels", d.Server.MaxImagePixels)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.profile_interval", d.Server.ProfileInterval)

	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.path", d.Model.Path)
	v.SetDefault("model.class_indices", d.Model.ClassIndices)
	v.SetDefault("model.head", d.Model.Head)
	v.SetDefault("model.top_k", d.Model.TopK)
	v.SetDefault("model.pool_size", d.Model.PoolSize)
	v.SetDefault("model.warmup", d.Model.Warmup)
	v.SetDefault("model.input_name", d.Model.InputName)
	v.SetDefault("model.output_name", d.Model.OutputName)
	v.SetDefault("model.layout", d.Model.Layout)
	v.SetDefault("model.activation", d.Model.Activation)
	v.SetDefault("model.width", d.Model.Width)
	v.SetDefault("model.height", d.Model.Height)
	v.SetDefault("model.interpolation", d.Model.Interpolation)
	v.SetDefault("model.resizer", d.Model.Resizer)

	v.SetDefault("onnx.backend", d.ONNX.Backend)
	v.SetDefault("onnx.library_path", d.ONNX.LibraryPath)
	v.SetDefault("onnx.optimization", d.ONNX.Optimization)
	v.SetDefault("onnx.intra_op_threads", d.ONNX.IntraOpThreads)
	v.SetDefault("onnx.inter_op_threads", d.ONNX.InterOpThreads)
	v.SetDefault("onnx.device_id", d.ONNX.DeviceID)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Load reads the configuration. A .env file in the working directory is
// loaded into the environment first when present, then the optional config
// file is read and CLASSIFY_* variables override it. PORT is honored as an
// alias of CLASSIFY_SERVER_PORT.
//
// Relative model, class index and head paths resolve against the config
// file's directory, or the working directory when no file is given.
//
// Arguments:
//   - path: The YAML config file, or "" to use defaults and the environment.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: A read, decode or validation error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	base, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(abs)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		base = filepath.Dir(abs)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if path != "" {
		cfg.File = v.ConfigFileUsed()
	}

	cfg.Model.Path = resolve(base, cfg.Model.Path)
	cfg.Model.ClassIndices = resolve(base, cfg.Model.ClassIndices)
	cfg.Model.Head = resolve(base, cfg.Model.Head)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid upload limit: %d", c.Server.MaxUploadBytes)
	}
	if c.Server.MaxImagePixels <= 0 {
		return fmt.Errorf("invalid image pixel limit: %d", c.Server.MaxImagePixels)
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ProfileInterval < 0 {
		return fmt.Errorf("shutdown timeout and profile interval must not be negative")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid CORS origin: %q", origin)
		}
	}

	if c.Model.Path == "" {
		return fmt.Errorf("model path is required")
	}
	if c.Model.PoolSize <= 0 {
		return fmt.Errorf("invalid pool size: %d", c.Model.PoolSize)
	}
	if c.Model.TopK < 0 || c.Model.Warmup < 0 {
		return fmt.Errorf("top_k and warmup must not be negative")
	}
	args := c.Model.Args()
	if !knownModel(args.Name) {
		return fmt.Errorf("unsupported model name: %q", c.Model.Name)
	}
	if err := args.Overrides.Validate(); err != nil {
		return err
	}

	if _, err := c.ONNX.ProviderConfig(); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %q", c.Log.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}
	return nil
}

func knownModel(name model.Name) bool {
	if name == "" {
		return true
	}
	for _, n := range models.Names {
		if n == name {
			return true
		}
	}
	return false
}
