package export

import (
	"math"

	"github.com/roman-kulish/iq-power/internal/pipeline"
)

const (
	// For 20 values:
	// - 5% percentile  = 1 value
	// - 95% percentile = 19th value
	minimumSampleCount = 20

	// Minimum displayed span of a decibel series
	minDecibelRange = 30
)

// valueBounds is the value range mapped onto the colour scale and the Y axis.
type valueBounds struct {
	Min  float64
	Max  float64
	Mean float64
}

// decibelHistogram maintains a histogram of decibel values with 1dB bins
type decibelHistogram struct {
	bins       map[int]uint64
	totalCount uint64
	minBin     int
	maxBin     int
	sum        float64
}

func newDecibelHistogram() *decibelHistogram {
	return &decibelHistogram{
		bins:   make(map[int]uint64),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// Update adds a value; NaN and infinite values are ignored.
func (h *decibelHistogram) Update(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}

	bin := int(math.Floor(v))
	h.bins[bin]++
	h.totalCount++
	h.sum += v

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// PercentileBounds returns the 5th to 95th percentile range widened to at least
// minDecibelRange, with a 10% margin on both sides.
func (h *decibelHistogram) PercentileBounds() valueBounds {
	target := h.totalCount * 5 / 100

	var count uint64
	var low, high int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += h.bins[bin]
		if count >= target {
			low = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += h.bins[bin]
		if count >= target {
			high = bin + 1
			break
		}
	}

	if high-low < minDecibelRange {
		center := (high + low) / 2
		low = center - minDecibelRange/2
		high = center + minDecibelRange/2
	}

	margin := (high - low) / 10
	return valueBounds{
		Min:  float64(low - margin),
		Max:  float64(high + margin),
		Mean: h.sum / float64(h.totalCount),
	}
}

// seriesBounds picks display bounds for a series. Decibel series with enough
// values use the percentile histogram; everything else spans the finite min and max.
func seriesBounds(series *pipeline.Series) (valueBounds, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	var n int

	hist := newDecibelHistogram()
	for _, v := range series.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
		n++
		hist.Update(v)
	}

	if n == 0 {
		return valueBounds{}, false
	}

	if series.Unit == pipeline.UnitDecibel && n >= minimumSampleCount {
		return hist.PercentileBounds(), true
	}

	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 1e-12)
		lo, hi = lo-pad, hi+pad
	}
	return valueBounds{Min: lo, Max: hi, Mean: sum / float64(n)}, true
}
