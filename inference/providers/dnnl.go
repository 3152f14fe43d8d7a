package providers

import (
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"
)

// DNNLProvider implements the ExecutionProvider interface.
//
// onnxruntime_go exposes no call to append the DNNL provider, so sessions use
// ONNX Runtime's CPU kernels, which are oneDNN backed in DNNL enabled builds.
type DNNLProvider struct {
	options DNNLOptions
}

// DNNLOptions contains arguments for the DNNL provider.
type DNNLOptions struct {
	UseArena bool `json:"useArena" yaml:"useArena"`
}

// isProviderOptions is a marker function to ensure the options are valid.
func (DNNLOptions) isProviderOptions() {}

// Options returns the options of the DNNL provider.
func (p *DNNLProvider) Options() ProviderOptions {
	return p.options
}

// Backend returns the backend of the DNNL provider.
func (p *DNNLProvider) Backend() ProviderBackend {
	return DNNLProviderBackend
}

// Configure leaves the session on the CPU provider.
func (p *DNNLProvider) Configure(*ort.SessionOptions) error {
	slog.Warn("dnnl execution provider cannot be appended, using cpu kernels")
	return nil
}

// NewDNNLProvider creates a new DNNL provider.
func NewDNNLProvider(args DNNLOptions) *DNNLProvider {
	return &DNNLProvider{
		options: args,
	}
}
