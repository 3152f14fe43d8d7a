package images

import (
	"fmt"
	"image"
	"sort"
	"sync"
)

// Resizer names a decode and resize backend.
type Resizer string

// Resizer constants
const (
	// ResizerNative decodes with the Go codecs and resizes with Resize.
	ResizerNative Resizer = "native"
	// ResizerGoCV decodes and resizes with OpenCV (build tag gocv).
	ResizerGoCV Resizer = "gocv"
	// ResizerVips decodes and resizes with libvips (build tag vips).
	ResizerVips Resizer = "vips"
)

// DecodeResizeFunc decodes encoded image bytes straight into a width x height
// RGB image.
type DecodeResizeFunc func(data []byte, width, height int, interp Interpolation) (image.Image, error)

var resizers = struct {
	sync.RWMutex
	m map[Resizer]DecodeResizeFunc
}{m: map[Resizer]DecodeResizeFunc{ResizerNative: decodeResizeNative}}

// registerResizer makes a backend available to DecodeResize. Build-tagged
// files call it from init.
func registerResizer(name Resizer, fn DecodeResizeFunc) {
	resizers.Lock()
	defer resizers.Unlock()
	resizers.m[name] = fn
}

// Resizers returns the backends compiled into this binary, sorted by name.
func Resizers() []Resizer {
	resizers.RLock()
	defer resizers.RUnlock()

	out := make([]Resizer, 0, len(resizers.m))
	for name := range resizers.m {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseResizer validates a resizer name. An empty name selects
// ResizerNative; known backends that were not compiled in are an error.
//
// Arguments:
//   - name: The configured resizer name.
//
// Returns:
//   - Resizer: The selected backend.
//   - error: An error if the backend is unknown or unavailable.
func ParseResizer(name string) (Resizer, error) {
	r := Resizer(name)
	if r == "" {
		return ResizerNative, nil
	}

	resizers.RLock()
	_, ok := resizers.m[r]
	resizers.RUnlock()
	if ok {
		return r, nil
	}

	switch r {
	case ResizerGoCV, ResizerVips:
		return "", fmt.Errorf("resizer %q is not compiled in, build with -tags %s", r, r)
	}
	return "", fmt.Errorf("unsupported resizer: %q (available: %v)", r, Resizers())
}

// DecodeResize decodes data and resizes it to width x height with the
// selected backend.
//
// Arguments:
//   - r: The backend; empty selects ResizerNative.
//   - data: The encoded image bytes.
//   - width: The target width.
//   - height: The target height.
//   - interp: The resampling kernel. libvips picks its own kernel.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the backend is unavailable or decoding fails.
func DecodeResize(r Resizer, data []byte, width, height int, interp Interpolation) (image.Image, error) {
	if r == "" {
		r = ResizerNative
	}

	resizers.RLock()
	fn, ok := resizers.m[r]
	resizers.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resizer %q is not available", r)
	}
	return fn(data, width, height, interp)
}

func decodeResizeNative(data []byte, width, height int, interp Interpolation) (image.Image, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Resize(img, width, height, interp)
}
