//go:build vips
// +build vips

package images

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/cshum/vipsgen/vips"
)

func init() {
	registerResizer(ResizerVips, func(data []byte, width, height int, _ Interpolation) (image.Image, error) {
		return ThumbnailVips(data, width, height)
	})
}

// ThumbnailVips resizes image bytes of any libvips-readable format to exactly
// width x height, returning a Go-native image.Image suitable for tensor
// conversion.
func ThumbnailVips(data []byte, width, height int) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	img, err := vips.NewImageFromBuffer(data, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		Size:   vips.SizeForce,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	// PNG keeps the resized pixels lossless on the way back into Go.
	out, err := img.PngsaveBuffer(&vips.PngsaveBufferOptions{})
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("failed to encode resized image")
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resized PNG: %w", err)
	}

	return decoded, nil
}
