package providers

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-classify/models/model"
)

// TensorInfo describes one declared model input or output.
type TensorInfo struct {
	Name        string  `json:"name"`
	Dims        []int64 `json:"dims"`
	ElementType string  `json:"element_type"`
	Float       bool    `json:"float"`
}

// Port converts the tensor info for binding.
func (t TensorInfo) Port() model.Port {
	return model.Port{Name: t.Name, Dims: append([]int64(nil), t.Dims...), Float: t.Float}
}

// Metadata is the metadata stored in a model file.
type Metadata struct {
	Producer    string            `json:"producer"`
	Graph       string            `json:"graph"`
	Domain      string            `json:"domain"`
	Description string            `json:"description"`
	Version     int64             `json:"version"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// ModelInfo is everything a model file declares about itself.
type ModelInfo struct {
	Path     string       `json:"path"`
	Inputs   []TensorInfo `json:"inputs"`
	Outputs  []TensorInfo `json:"outputs"`
	Metadata Metadata     `json:"metadata"`
}

// InputPorts returns the inputs for binding.
func (m *ModelInfo) InputPorts() []model.Port {
	return ports(m.Inputs)
}

// OutputPorts returns the outputs for binding.
func (m *ModelInfo) OutputPorts() []model.Port {
	return ports(m.Outputs)
}

// CustomKeys returns the custom metadata keys in sorted order.
func (m *ModelInfo) CustomKeys() []string {
	keys := make([]string, 0, len(m.Metadata.Custom))
	for k := range m.Metadata.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ports(infos []TensorInfo) []model.Port {
	out := make([]model.Port, len(infos))
	for i, info := range infos {
		out[i] = info.Port()
	}
	return out
}

// Introspect reads the declared inputs, outputs and metadata of a model. The
// environment must be initialized.
//
// Arguments:
//   - path: The ONNX model file.
//
// Returns:
//   - *ModelInfo: The model description.
//   - error: An error if the file cannot be loaded.
func Introspect(path string) (*ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}

	info := &ModelInfo{
		Path:    path,
		Inputs:  tensorInfos(inputs),
		Outputs: tensorInfos(outputs),
	}

	md, err := readMetadata(path)
	if err != nil {
		return nil, err
	}
	info.Metadata = md

	return info, nil
}

func tensorInfos(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(infos))
	for i, info := range infos {
		out[i] = TensorInfo{
			Name:        info.Name,
			Dims:        append([]int64(nil), info.Dimensions...),
			ElementType: fmt.Sprint(info.DataType),
			Float:       info.DataType == ort.TensorElementDataTypeFloat,
		}
	}
	return out
}

func readMetadata(path string) (Metadata, error) {
	var md Metadata

	m, err := ort.GetModelMetadata(path)
	if err != nil {
		return md, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer m.Destroy()

	if md.Producer, err = m.GetProducerName(); err != nil {
		return md, fmt.Errorf("failed to read producer name: %w", err)
	}
	if md.Graph, err = m.GetGraphName(); err != nil {
		return md, fmt.Errorf("failed to read graph name: %w", err)
	}
	if md.Domain, err = m.GetDomain(); err != nil {
		return md, fmt.Errorf("failed to read domain: %w", err)
	}
	if md.Description, err = m.GetDescription(); err != nil {
		return md, fmt.Errorf("failed to read description: %w", err)
	}
	if md.Version, err = m.GetVersion(); err != nil {
		return md, fmt.Errorf("failed to read version: %w", err)
	}

	keys, err := m.GetCustomMetadataMapKeys()
	if err != nil {
		return md, fmt.Errorf("failed to read custom metadata keys: %w", err)
	}
	if len(keys) > 0 {
		md.Custom = make(map[string]string, len(keys))
	}
	for _, k := range keys {
		v, ok, err := m.LookupCustomMetadataMap(k)
		if err != nil {
			return md, fmt.Errorf("failed to read custom metadata %q: %w", k, err)
		}
		if ok {
			md.Custom[k] = v
		}
	}

	return md, nil
}
