package images

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Interpolation selects the resampling kernel used when resizing.
type Interpolation string

// Interpolation constants
const (
	// InterpolationNearest is nearest-neighbor sampling.
	InterpolationNearest Interpolation = "nearest"
	// InterpolationBilinear is bilinear sampling.
	InterpolationBilinear Interpolation = "bilinear"
	// InterpolationBicubic is bicubic sampling.
	InterpolationBicubic Interpolation = "bicubic"
	// InterpolationLanczos is Lanczos3 sampling.
	InterpolationLanczos Interpolation = "lanczos"
	// InterpolationCatmullRom is Catmull-Rom sampling via x/image/draw.
	InterpolationCatmullRom Interpolation = "catmullrom"
)

// Interpolations lists every supported interpolation.
var Interpolations = []Interpolation{
	InterpolationNearest,
	InterpolationBilinear,
	InterpolationBicubic,
	InterpolationLanczos,
	InterpolationCatmullRom,
}

// Valid reports whether the interpolation is supported.
func (i Interpolation) Valid() bool {
	for _, v := range Interpolations {
		if v == i {
			return true
		}
	}
	return false
}

// Resize stretches an image to exactly width x height.
//
// Arguments:
//   - img: The image to resize.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//   - interp: The resampling kernel.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the dimensions or interpolation are invalid.
func Resize(img image.Image, width, height int, interp Interpolation) (image.Image, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}

	switch interp {
	case InterpolationNearest:
		return resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor), nil
	case InterpolationBilinear:
		return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
	case InterpolationBicubic, "":
		return resize.Resize(uint(width), uint(height), img, resize.Bicubic), nil
	case InterpolationLanczos:
		return resize.Resize(uint(width), uint(height), img, resize.Lanczos3), nil
	case InterpolationCatmullRom:
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return dst, nil
	default:
		return nil, fmt.Errorf("unsupported interpolation: %q", interp)
	}
}

// ToNRGBA converts any image into a zero-origin NRGBA image with straight
// (non-premultiplied) channels. Alpha is kept in the A channel but the R, G
// and B values are not attenuated by it, so dropping A yields the plain RGB
// values of every pixel.
//
// Arguments:
//   - img: The image to convert.
//
// Returns:
//   - *image.NRGBA: The converted image.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}

	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}

// Letterbox scales an image into width x height preserving its aspect ratio
// and pads the remainder with fill.
//
// Returns:
//   - image.Image: The letterboxed image.
//   - float64: The applied scale.
//   - image.Point: The top-left offset of the scaled image.
//   - error: An error if resizing fails.
func Letterbox(img image.Image, width, height int, fill color.Color, interp Interpolation) (image.Image, float64, image.Point, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, 0, image.Point{}, ErrEmptyImage
	}

	scale := float64(width) / float64(b.Dx())
	if s := float64(height) / float64(b.Dy()); s < scale {
		scale = s
	}

	newWidth := maxInt(1, int(float64(b.Dx())*scale))
	newHeight := maxInt(1, int(float64(b.Dy())*scale))

	resized, err := Resize(img, newWidth, newHeight, interp)
	if err != nil {
		return nil, 0, image.Point{}, err
	}

	offset := image.Pt((width-newWidth)/2, (height-newHeight)/2)
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(newWidth, newHeight))},
		resized, resized.Bounds().Min, draw.Over)

	return canvas, scale, offset, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
