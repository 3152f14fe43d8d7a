package postprocess

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-classify/models/model"
)

// DistributionTolerance is how far from 1 the sum of a vector may be for it
// to count as a probability distribution.
const DistributionTolerance = 1e-3

// ErrEmptyOutput is returned when a model produced no scores.
var ErrEmptyOutput = errors.New("model output is empty")

// Activate turns raw model output into class scores.
//
// Arguments:
//   - activation: The activation to apply. Auto keeps probability vectors as
//     they are and softmaxes anything else.
//   - raw: The raw output; it is never modified.
//
// Returns:
//   - []float32: A new slice holding the scores.
//   - error: ErrEmptyOutput, a non-finite value or an unknown activation.
func Activate(activation model.Activation, raw []float32) ([]float32, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyOutput
	}
	for i, v := range raw {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, fmt.Errorf("model output %d is not finite: %v", i, v)
		}
	}

	switch activation {
	case model.ActivationAuto, "":
		if IsDistribution(raw) {
			return append([]float32(nil), raw...), nil
		}
		return Softmax(raw), nil
	case model.ActivationSoftmax:
		return Softmax(raw), nil
	case model.ActivationSigmoid:
		return Sigmoid(raw), nil
	case model.ActivationNone:
		return append([]float32(nil), raw...), nil
	default:
		return nil, fmt.Errorf("unsupported activation: %q", activation)
	}
}

// IsDistribution reports whether v is non-negative and sums to 1 within
// DistributionTolerance.
func IsDistribution(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	var sum float32
	for _, x := range v {
		if x < 0 {
			return false
		}
		sum += x
	}
	return math32.Abs(sum-1) <= DistributionTolerance
}

// Softmax returns the numerically stable softmax of v.
func Softmax(v []float32) []float32 {
	out := make([]float32, len(v))
	if len(v) == 0 {
		return out
	}

	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}

	var sum float32
	for i, x := range v {
		out[i] = math32.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Sigmoid returns the element-wise logistic function of v.
func Sigmoid(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = 1 / (1 + math32.Exp(-x))
	}
	return out
}
