package power

import (
	"errors"
	"fmt"
)

// DefaultWindowSize is the number of power values averaged per output point.
const DefaultWindowSize = 20000

// ErrInvalidWindowSize is returned for a window size below one.
var ErrInvalidWindowSize = errors.New("window size must be positive")

// Average splits p into consecutive, non-overlapping windows of exactly n values
// and returns the arithmetic mean of each. A trailing remainder shorter than n is
// discarded, so the result always has len(p)/n elements.
//
// Each window is summed in its original order; the result is reproducible bit for bit.
func Average(p []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, n)
	}

	out := make([]float64, 0, len(p)/n)
	for start := 0; start+n <= len(p); start += n {
		var sum float64
		for _, v := range p[start : start+n] {
			sum += v
		}
		out = append(out, sum/float64(n))
	}
	return out, nil
}
