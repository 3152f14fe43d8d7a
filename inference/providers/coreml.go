package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// CoreML execution provider flags.
const (
	coreMLFlagUseCPUOnly               uint32 = 0x001
	coreMLFlagEnableOnSubgraph         uint32 = 0x002
	coreMLFlagOnlyEnableDeviceWithANE  uint32 = 0x004
	coreMLFlagOnlyAllowStaticInputSize uint32 = 0x008
	coreMLFlagCreateMLProgram          uint32 = 0x010
)

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// MLProgram: Create an MLProgram format model. Requires Core ML 5 or later (iOS 15+ or macOS 12+).
	// NeuralNetwork: Create a NeuralNetwork format model. Requires Core ML 3 or later (iOS 13+ or
	// macOS 10.15+).
	// Default: NeuralNetwork
	ModelFormat string `json:"modelFormat"              yaml:"modelFormat"`
	// CPUOnly: Limit CoreML to running on CPU only.
	// CPUAndNeuralEngine: Enable CoreML EP for Apple devices with a compatible Apple Neural Engine
	// (ANE).
	// ALL: Enable CoreML EP for all compatible Apple devices.
	// Default: ALL
	MLComputeUnits string `json:"mlComputeUnits"           yaml:"mlComputeUnits"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator (i.e. a Loop, Scan
	// or If operator).
	EnableOnSubgraphs bool `json:"enableOnSubgraphs"        yaml:"enableOnSubgraphs"`
}

func (CoreMLOptions) isProviderOptions() {}

// Flags returns the options as CoreML provider flags.
func (o CoreMLOptions) Flags() (uint32, error) {
	var flags uint32

	switch strings.ToLower(o.ModelFormat) {
	case "", "neuralnetwork":
	case "mlprogram":
		flags |= coreMLFlagCreateMLProgram
	default:
		return 0, fmt.Errorf("unsupported CoreML model format: %q", o.ModelFormat)
	}

	switch strings.ToLower(o.MLComputeUnits) {
	case "", "all":
	case "cpuonly":
		flags |= coreMLFlagUseCPUOnly
	case "cpuandneuralengine":
		flags |= coreMLFlagOnlyEnableDeviceWithANE
	default:
		return 0, fmt.Errorf("unsupported CoreML compute units: %q", o.MLComputeUnits)
	}

	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyAllowStaticInputSize
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLFlagEnableOnSubgraph
	}

	return flags, nil
}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// Configure appends the CoreML execution provider.
func (p *CoreMLProvider) Configure(options *ort.SessionOptions) error {
	flags, err := p.options.Flags()
	if err != nil {
		return err
	}
	if err := options.AppendExecutionProviderCoreML(flags); err != nil {
		return fmt.Errorf("error enabling CoreML: %w", err)
	}
	return nil
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{
		options: options,
	}
}
