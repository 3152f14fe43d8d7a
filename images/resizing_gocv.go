//go:build gocv
// +build gocv

package images

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

func init() {
	registerResizer(ResizerGoCV, DecodeResizeGoCV)
}

// gocvInterpolation maps an Interpolation onto the OpenCV resize flags.
func gocvInterpolation(interp Interpolation) gocv.InterpolationFlags {
	switch interp {
	case InterpolationNearest:
		return gocv.InterpolationNearestNeighbor
	case InterpolationBilinear:
		return gocv.InterpolationLinear
	case InterpolationLanczos:
		return gocv.InterpolationLanczos4
	default:
		return gocv.InterpolationCubic
	}
}

// DecodeResizeGoCV decodes and resizes image bytes with OpenCV, returning an
// RGB image.Image of exactly width x height.
//
// Arguments:
//   - data: The encoded image bytes.
//   - width: The target width.
//   - height: The target height.
//   - interp: The resampling kernel.
//
// Returns:
//   - image.Image: The resized RGB image.
//   - error: An error if decoding or conversion fails.
func DecodeResizeGoCV(data []byte, width, height int, interp Interpolation) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		if !mat.Empty() {
			mat.Close()
		}
		return nil, errors.New("failed to decode image")
	}
	defer mat.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, gocvInterpolation(interp))

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	img, err := rgb.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat to image: %w", err)
	}

	return img, nil
}
