package providers

import (
	"fmt"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"                      yaml:"deviceID"`
	// Whether to do copies in the default stream or use separate streams. The recommended setting is
	// true. If false, there are race conditions and possibly better performance.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream"         yaml:"doCopyInDefaultStream"`
	// Uses the same CUDA stream for all threads of the CUDA EP.
	UseEPLevelUnifiedStream bool `json:"useEPLevelUnifiedStream"       yaml:"useEPLevelUnifiedStream"`
	// The size limit of the device memory arena in bytes. 0 leaves the limit unset.
	GPUMemLimit int64 `json:"gpuMemLimit"                   yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo - subsequent extensions extend by larger amounts (multiplied by powers of
	// two)
	// 1: kSameAsRequested - extend by the requested amount
	ArenaExtendStrategy int `json:"arenaExtendStrategy"           yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch"           yaml:"cudnnConvAlgoSearch"`
	// Check tuning performance for convolution heavy models for details on what this flag does.
	CudnnConvUseMaxWorkspace bool `json:"cudnnConvUseMaxWorkspace"      yaml:"cudnnConvUseMaxWorkspace"`
	// Check using CUDA Graphs in the CUDA EP for details on what this flag does.
	EnableCudaGraph bool `json:"enableCudaGraph"               yaml:"enableCudaGraph"`
	// TF32 lets float32 matrix multiplications run on tensor cores at reduced precision.
	UseTF32 bool `json:"useTF32"                       yaml:"useTF32"`
	// If this option is enabled, the execution provider prefers NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC"                    yaml:"preferNHWC"`
}

var (
	arenaExtendStrategies = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	cudnnConvAlgoSearches = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

// isProviderOptions is a marker function to ensure the options are valid.
func (CUDAOptions) isProviderOptions() {}

// Values returns the options as ONNX Runtime provider option keys.
func (o CUDAOptions) Values() (map[string]string, error) {
	if o.ArenaExtendStrategy < 0 || o.ArenaExtendStrategy >= len(arenaExtendStrategies) {
		return nil, fmt.Errorf("invalid arena extend strategy: %d", o.ArenaExtendStrategy)
	}
	if o.CudnnConvAlgoSearch < 0 || o.CudnnConvAlgoSearch >= len(cudnnConvAlgoSearches) {
		return nil, fmt.Errorf("invalid cudnn conv algo search: %d", o.CudnnConvAlgoSearch)
	}

	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}

	values := map[string]string{
		"device_id":                    strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream":    b(o.DoCopyInDefaultStream),
		"use_ep_level_unified_stream":  b(o.UseEPLevelUnifiedStream),
		"arena_extend_strategy":        arenaExtendStrategies[o.ArenaExtendStrategy],
		"cudnn_conv_algo_search":       cudnnConvAlgoSearches[o.CudnnConvAlgoSearch],
		"cudnn_conv_use_max_workspace": b(o.CudnnConvUseMaxWorkspace),
		"enable_cuda_graph":            b(o.EnableCudaGraph),
		"use_tf32":                     b(o.UseTF32),
		"prefer_nhwc":                  b(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		values["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}

	return values, nil
}

// ToNativeProviderOptions converts the CUDA options to native CUDA provider
// options. The caller must Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	values, err := o.Values()
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	if err := opts.Update(values); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("error updating CUDA options: %w", err)
	}

	return opts, nil
}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Configure appends the CUDA execution provider.
func (p *CUDAProvider) Configure(options *ort.SessionOptions) error {
	cuda, err := p.options.ToNativeProviderOptions()
	if err != nil {
		return fmt.Errorf("error converting CUDA options: %w", err)
	}
	defer cuda.Destroy()

	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("error enabling CUDA: %w", err)
	}
	return nil
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{
		options: args,
	}
}
