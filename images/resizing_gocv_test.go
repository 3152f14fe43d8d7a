//go:build gocv
// +build gocv

package images

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResizeGoCV(t *testing.T) {
	require.Contains(t, Resizers(), ResizerGoCV)

	data := encode(t, FormatJPEG, solid(64, 32, color.NRGBA{R: 220, G: 40, B: 10, A: 255}))
	out, err := DecodeResize(ResizerGoCV, data, 16, 8, InterpolationBicubic)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())

	c := color.NRGBAModel.Convert(out.At(8, 4)).(color.NRGBA)
	assert.InDelta(t, 220, int(c.R), 8, "channels come back as RGB")
	assert.InDelta(t, 10, int(c.B), 8)

	_, err = DecodeResizeGoCV(nil, 16, 8, InterpolationBicubic)
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = DecodeResizeGoCV(data, 0, 8, InterpolationBicubic)
	assert.Error(t, err)
}
