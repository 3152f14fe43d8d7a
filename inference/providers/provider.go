// Package providers - ONNX Runtime execution providers and sessions.
package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU execution provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
	// DNNLProviderBackend uses Intel DNNL (oneDNN) for CPU optimization.
	DNNLProviderBackend ProviderBackend = "dnnl"
)

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
	DNNLProviderBackend,
}

// ParseBackend parses a backend name, case-insensitively. An empty name is
// the CPU backend.
func ParseBackend(name string) (ProviderBackend, error) {
	b := ProviderBackend(strings.ToLower(strings.TrimSpace(name)))
	if b == "" {
		return CPUProviderBackend, nil
	}
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported provider backend: %q", name)
}

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the backend the provider runs on.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Configure appends the provider to the session options.
	Configure(options *ort.SessionOptions) error
}

// Config selects and configures an execution provider.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// Options contains provider-specific configuration options. When nil the
	// backend's defaults are used.
	Options ProviderOptions `json:"options" yaml:"options"`
	// Optimization configures the session itself.
	Optimization *OptimizationConfig `json:"optimization,omitempty" yaml:"optimization"`
	// LibraryPath is the ONNX Runtime shared library; see GetSharedLibPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - config: The backend and its options.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unknown or the options do not match it.
func NewProvider(config Config) (ExecutionProvider, error) {
	backend := config.Backend
	if backend == "" {
		backend = CPUProviderBackend
	}

	switch backend {
	case CPUProviderBackend:
		opts, err := optionsAs(config.Options, CPUOptions{})
		if err != nil {
			return nil, err
		}
		return NewCPUProvider(opts), nil
	case CUDAProviderBackend:
		opts, err := optionsAs(config.Options, CUDAOptions{})
		if err != nil {
			return nil, err
		}
		return NewCUDAProvider(opts), nil
	case CoreMLProviderBackend:
		opts, err := optionsAs(config.Options, CoreMLOptions{})
		if err != nil {
			return nil, err
		}
		return NewCoreMLProvider(opts), nil
	case OpenVINOProviderBackend:
		opts, err := optionsAs(config.Options, OpenVINOOptions{DeviceType: "CPU"})
		if err != nil {
			return nil, err
		}
		return NewOpenVINOProvider(opts), nil
	case DNNLProviderBackend:
		opts, err := optionsAs(config.Options, DNNLOptions{UseArena: true})
		if err != nil {
			return nil, err
		}
		return NewDNNLProvider(opts), nil
	default:
		return nil, fmt.Errorf("no matching provider backend registered: %s", backend)
	}
}

func optionsAs[T ProviderOptions](options ProviderOptions, def T) (T, error) {
	if options == nil {
		return def, nil
	}
	if opts, ok := options.(T); ok {
		return opts, nil
	}
	return def, fmt.Errorf("unsupported provider options type %T for %T", options, def)
}
