package resnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/models/model"
	"github.com/nvr-ai/go-classify/models/model/preprocess"
)

func TestNewModel(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Path: "resnet50.onnx"})
	require.NoError(t, err)

	opts := m.Options()
	assert.Equal(t, model.LayoutNCHW, opts.Layout)
	assert.Equal(t, model.ActivationSoftmax, opts.Activation)
	assert.Equal(t, preprocess.NormalizeStandardize, opts.Normalization)
	assert.Equal(t, Mean, opts.Mean)

	opts.Mean[0] = 0
	assert.InDelta(t, 123.675, Mean[0], 1e-6, "recipe options do not alias the package statistics")
}

func TestResNetBinding(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Path: "resnet50.onnx"})
	require.NoError(t, err)

	b, err := model.Resolve(m.Options(), model.Overrides{},
		[]model.Port{{Name: "input", Dims: []int64{-1, 3, 224, 224}, Float: true}},
		[]model.Port{{Name: "output", Dims: []int64{-1, 1000}, Float: true}},
	)
	require.NoError(t, err)

	cfg := b.PreprocessConfig()
	_, err = preprocess.NewPreprocessor(cfg)
	require.NoError(t, err)
	assert.Equal(t, preprocess.ChannelOrderCHW, cfg.ChannelOrder)
	assert.Len(t, cfg.StdValues, 3)
}
