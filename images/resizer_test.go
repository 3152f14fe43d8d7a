package images

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResizer(t *testing.T) {
	r, err := ParseResizer("")
	require.NoError(t, err)
	assert.Equal(t, ResizerNative, r)

	r, err = ParseResizer("native")
	require.NoError(t, err)
	assert.Equal(t, ResizerNative, r)

	_, err = ParseResizer("pillow")
	assert.Error(t, err)

	assert.Contains(t, Resizers(), ResizerNative)
	for _, name := range []Resizer{ResizerGoCV, ResizerVips} {
		_, err := ParseResizer(string(name))
		if contains(Resizers(), name) {
			assert.NoError(t, err)
		} else {
			assert.ErrorContains(t, err, "-tags "+string(name))
		}
	}
}

func TestDecodeResizeNative(t *testing.T) {
	data := encode(t, FormatPNG, solid(40, 20, color.NRGBA{R: 200, G: 100, B: 50, A: 255}))

	out, err := DecodeResize("", data, 10, 5, InterpolationBilinear)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Bounds().Dx())
	assert.Equal(t, 5, out.Bounds().Dy())

	c := color.NRGBAModel.Convert(out.At(5, 2)).(color.NRGBA)
	assert.InDelta(t, 200, int(c.R), 2)
	assert.InDelta(t, 50, int(c.B), 2)

	_, err = DecodeResize(ResizerNative, []byte("nope"), 10, 5, InterpolationBilinear)
	assert.Error(t, err)

	_, err = DecodeResize("pillow", data, 10, 5, InterpolationBilinear)
	assert.Error(t, err)
}

func contains(list []Resizer, r Resizer) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}
