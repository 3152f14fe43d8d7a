// Package preprocess - Image to tensor conversion for classification models.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/nvr-ai/go-classify/images"
	"github.com/pkg/errors"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize), in 0-255 units.
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize), in 0-255 units.
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color
	// Interpolation is the resampling kernel used for resizing.
	Interpolation images.Interpolation
	// Resizer is the decode and resize backend for encoded images. Letterboxing
	// always runs on the native path.
	Resizer images.Resizer
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// String returns the configuration name of the normalization.
func (n NormalizationType) String() string {
	switch n {
	case NormalizeNone:
		return "none"
	case NormalizeZeroToOne:
		return "zero_to_one"
	case NormalizeMinusOneToOne:
		return "minus_one_to_one"
	case NormalizeStandardize:
		return "standardize"
	default:
		return fmt.Sprintf("normalization(%d)", int(n))
	}
}

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX exports of torch models).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering (Keras / TensorFlow models).
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data for a batch of one.
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float64
	// ScaleY is the vertical scaling factor applied.
	ScaleY float64
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
	// Shape contains the tensor shape [1, C, H, W] or [1, H, W, C].
	Shape []int64
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the configuration is unusable.
//
// @example
//
//	preprocessor, err := NewPreprocessor(&ModelConfig{
//	    Name:              "mobilenetv2",
//	    InputWidth:        224,
//	    InputHeight:       224,
//	    InputChannels:     3,
//	    NormalizationType: NormalizeZeroToOne,
//	    ChannelOrder:      ChannelOrderHWC,
//	    ColorMode:         ColorModeRGB,
//	})
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size: %dx%d", config.InputWidth, config.InputHeight)
	}
	if config.InputChannels != 1 && config.InputChannels != 3 {
		return nil, fmt.Errorf("unsupported channel count: %d", config.InputChannels)
	}
	if config.ColorMode == ColorModeGrayscale && config.InputChannels != 1 {
		return nil, fmt.Errorf("grayscale color mode needs 1 channel, got %d", config.InputChannels)
	}
	if config.NormalizationType == NormalizeStandardize &&
		(len(config.MeanValues) != config.InputChannels || len(config.StdValues) != config.InputChannels) {
		return nil, fmt.Errorf("standardize needs %d mean and std values, got %d and %d",
			config.InputChannels, len(config.MeanValues), len(config.StdValues))
	}
	for i, s := range config.StdValues {
		if s == 0 {
			return nil, fmt.Errorf("std value %d is zero", i)
		}
	}

	// Set default letterbox color if not specified.
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	if config.Interpolation == "" {
		config.Interpolation = images.InterpolationBicubic
	}
	resizer, err := images.ParseResizer(string(config.Resizer))
	if err != nil {
		return nil, err
	}
	config.Resizer = resizer

	return &Preprocessor{config: config}, nil
}

// Config returns the configuration the preprocessor was built with.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Size returns the number of float32 values a single preprocessed image holds.
func (p *Preprocessor) Size() int {
	return p.config.InputWidth * p.config.InputHeight * p.config.InputChannels
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
//   - img: The input image to preprocess.
//
// Returns:
//   - *PreprocessingResult: The preprocessed tensor and metadata.
//   - error: An error if validation or decoding fails.
func (p *Preprocessor) Preprocess(img *images.Image) (*PreprocessingResult, error) {
	if err := p.validateInput(img); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}

	if p.config.Resizer != images.ResizerNative && !p.config.KeepAspectRatio {
		resized, err := images.DecodeResize(p.config.Resizer, img.Data,
			p.config.InputWidth, p.config.InputHeight, p.config.Interpolation)
		if err != nil {
			return nil, errors.Wrapf(err, "%s decode and resize failed", p.config.Resizer)
		}
		if b := resized.Bounds(); b.Dx() != p.config.InputWidth || b.Dy() != p.config.InputHeight {
			return nil, fmt.Errorf("%s resizer returned %dx%d, want %dx%d",
				p.config.Resizer, b.Dx(), b.Dy(), p.config.InputWidth, p.config.InputHeight)
		}
		result := &PreprocessingResult{
			OriginalWidth:  img.Width,
			OriginalHeight: img.Height,
		}
		if img.Width > 0 && img.Height > 0 {
			result.ScaleX = float64(p.config.InputWidth) / float64(img.Width)
			result.ScaleY = float64(p.config.InputHeight) / float64(img.Height)
		}
		p.finish(result, resized)
		return result, nil
	}

	decoded, _, err := images.Decode(img.Data)
	if err != nil {
		return nil, errors.Wrap(err, "image decoding failed")
	}

	return p.PreprocessImage(decoded)
}

// PreprocessImage converts an already decoded image into a model tensor.
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - *PreprocessingResult: The preprocessed tensor and metadata.
//   - error: An error if resizing fails.
func (p *Preprocessor) PreprocessImage(img image.Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.Wrap(images.ErrEmptyImage, "input validation failed")
	}

	bounds := img.Bounds()
	originalWidth, originalHeight := bounds.Dx(), bounds.Dy()
	if originalWidth <= 0 || originalHeight <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", originalWidth, originalHeight)
	}

	result := &PreprocessingResult{
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
	}

	var resized image.Image
	var err error
	if p.config.KeepAspectRatio {
		var scale float64
		var offset image.Point
		resized, scale, offset, err = images.Letterbox(img, p.config.InputWidth, p.config.InputHeight,
			p.config.LetterboxColor, p.config.Interpolation)
		result.ScaleX, result.ScaleY = scale, scale
		result.PadLeft, result.PadTop = offset.X, offset.Y
	} else {
		resized, err = images.Resize(img, p.config.InputWidth, p.config.InputHeight, p.config.Interpolation)
		result.ScaleX = float64(p.config.InputWidth) / float64(originalWidth)
		result.ScaleY = float64(p.config.InputHeight) / float64(originalHeight)
	}
	if err != nil {
		return nil, errors.Wrap(err, "image resizing failed")
	}

	p.finish(result, resized)
	return result, nil
}

// finish fills the tensor and shape of result from an image of the input size.
func (p *Preprocessor) finish(result *PreprocessingResult, resized image.Image) {
	result.Data = p.imageToTensor(images.ToNRGBA(resized))
	p.normalize(result.Data)

	if p.config.ChannelOrder == ChannelOrderCHW {
		result.Shape = []int64{1, int64(p.config.InputChannels), int64(p.config.InputHeight), int64(p.config.InputWidth)}
	} else {
		result.Shape = []int64{1, int64(p.config.InputHeight), int64(p.config.InputWidth), int64(p.config.InputChannels)}
	}
}

// validateInput validates the input image structure.
func (p *Preprocessor) validateInput(img *images.Image) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if len(img.Data) == 0 {
		return images.ErrEmptyImage
	}
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", img.Width, img.Height)
	}
	return nil
}

// imageToTensor converts an image to a float32 tensor of raw 0-255 values.
func (p *Preprocessor) imageToTensor(img *image.NRGBA) []float32 {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	plane := width * height

	tensor := make([]float32, plane*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			r8, g8, b8 := row[x*4], row[x*4+1], row[x*4+2]

			if p.config.InputChannels == 1 {
				gray := float32(color.GrayModel.Convert(color.NRGBA{R: r8, G: g8, B: b8, A: 255}).(color.Gray).Y)
				tensor[y*width+x] = gray
				continue
			}

			var ch0, ch1, ch2 float32
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = float32(b8), float32(g8), float32(r8)
			} else {
				ch0, ch1, ch2 = float32(r8), float32(g8), float32(b8)
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[y*width+x] = ch0
				tensor[plane+y*width+x] = ch1
				tensor[2*plane+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
//   - imgs: Slice of images to preprocess.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - []*PreprocessingResult: Results in input order.
//   - error: The first preprocessing error, if any.
func (p *Preprocessor) BatchPreprocess(imgs []*images.Image, maxConcurrency int) ([]*PreprocessingResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*PreprocessingResult, len(imgs))
	errs := make([]error, len(imgs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range imgs {
		wg.Add(1)
		go func(idx int, img *images.Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(img)
			if err != nil {
				errs[idx] = fmt.Errorf("failed to preprocess image %d: %w", idx, err)
				return
			}
			results[idx] = result
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
