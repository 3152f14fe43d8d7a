//go:build vips
// +build vips

package images

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnailVips(t *testing.T) {
	require.Contains(t, Resizers(), ResizerVips)

	data := encode(t, FormatPNG, solid(64, 32, color.NRGBA{R: 30, G: 160, B: 90, A: 255}))
	out, err := DecodeResize(ResizerVips, data, 20, 20, InterpolationNearest)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx(), "the thumbnail is forced to the exact size")
	assert.Equal(t, 20, out.Bounds().Dy())

	c := color.NRGBAModel.Convert(out.At(10, 10)).(color.NRGBA)
	assert.InDelta(t, 160, int(c.G), 4)

	_, err = ThumbnailVips(nil, 20, 20)
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = ThumbnailVips(data, -1, 20)
	assert.Error(t, err)
}
