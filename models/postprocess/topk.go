package postprocess

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Argmax returns the index of the highest score. Ties resolve to the lower
// index.
func Argmax(scores []float32) (int, error) {
	if len(scores) == 0 {
		return -1, ErrEmptyOutput
	}
	if len(scores) == 1 {
		return 0, nil
	}

	t := tensor.New(tensor.WithShape(len(scores)), tensor.WithBacking(scores))
	res, err := t.Argmax(0)
	if err != nil {
		return -1, fmt.Errorf("argmax failed: %w", err)
	}

	switch v := res.Data().(type) {
	case int:
		return v, nil
	case []int:
		if len(v) == 1 {
			return v[0], nil
		}
	}
	return -1, fmt.Errorf("unexpected argmax result %v", res.Data())
}

// TopK returns the k best scores, highest first. Equal scores keep index
// order. k is clamped to the number of scores; k <= 0 returns every score.
func TopK(scores []float32, k int) []Score {
	if k <= 0 || k > len(scores) {
		k = len(scores)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]Score, k)
	for i := 0; i < k; i++ {
		out[i] = Score{Index: order[i], Confidence: scores[order[i]]}
	}
	return out
}
