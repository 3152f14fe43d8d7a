// Package images - Image definition for processing utilities.
package images

import (
	"errors"
	"fmt"
)

// DefaultMaxPixels is the largest width*height accepted by NewImage, the same
// decompression bomb threshold Pillow uses.
const DefaultMaxPixels int64 = 89_478_485

var (
	// ErrEmptyImage is returned when an image carries no bytes.
	ErrEmptyImage = errors.New("image data is empty")
	// ErrUnsupportedFormat is returned when the image bytes match no registered decoder.
	ErrUnsupportedFormat = errors.New("cannot identify image file")
	// ErrTooManyPixels is returned when the header declares more pixels than allowed.
	ErrTooManyPixels = errors.New("image has too many pixels")
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatUnknown is returned when the format could not be detected.
	FormatUnknown ImageFormat = ""
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// NewImage wraps raw bytes into an Image, detecting the format and reading
// the dimensions from the image header without decoding the pixels. Images
// over DefaultMaxPixels are rejected.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - *Image: The image with format and dimensions populated.
//   - error: ErrEmptyImage, ErrUnsupportedFormat, ErrTooManyPixels or a header parsing error.
func NewImage(data []byte) (*Image, error) {
	return NewImageWithLimit(data, DefaultMaxPixels)
}

// NewImageWithLimit is NewImage with an explicit pixel limit. The limit is
// checked against the header before anything is decoded; maxPixels <= 0
// disables it.
//
// Arguments:
//   - data: The encoded image bytes.
//   - maxPixels: The largest accepted width*height.
//
// Returns:
//   - *Image: The image with format and dimensions populated.
//   - error: ErrEmptyImage, ErrUnsupportedFormat, ErrTooManyPixels or a header parsing error.
func NewImageWithLimit(data []byte, maxPixels int64) (*Image, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}

	cfg, err := DecodeConfig(data)
	if err != nil {
		return nil, err
	}

	if maxPixels > 0 {
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d is %d pixels, the limit is %d",
				ErrTooManyPixels, cfg.Width, cfg.Height, pixels, maxPixels)
		}
	}

	return &Image{
		Format: format,
		Data:   data,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
