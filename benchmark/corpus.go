package benchmark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/nvr-ai/go-classify/images"
)

// EncodeQuality is the JPEG and WebP quality of benchmark uploads.
const EncodeQuality = 90

// Synthetic creates a deterministic leaf-coloured test pattern.
func Synthetic(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 97) % 256 / 3),
				G: uint8(96 + (y*255/maxInt(height, 1))%160),
				B: uint8(((x ^ y) * 31) % 96),
				A: 0xff,
			})
		}
	}
	return img
}

// Encode encodes an image the way a client would upload it.
//
// Arguments:
//   - img: The image to encode.
//   - format: One of the formats images.Decode reads.
//
// Returns:
//   - []byte: The encoded bytes.
//   - error: An unsupported format or an encoder error.
func Encode(img image.Image, format images.ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case images.FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: EncodeQuality})
	case images.FormatPNG:
		err = png.Encode(&buf, img)
	case images.FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case images.FormatBMP:
		err = bmp.Encode(&buf, img)
	case images.FormatTIFF:
		err = tiff.Encode(&buf, img, nil)
	case images.FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: EncodeQuality})
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}

	return buf.Bytes(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
