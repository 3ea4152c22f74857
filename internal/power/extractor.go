package power

import (
	"fmt"
	"strings"

	"github.com/roman-kulish/iq-power/internal/iq"
)

const (
	MagnitudeMode Mode = "magnitude"
	RealMode      Mode = "real"

	// DefaultWarmup is the number of leading samples dropped in RealMode
	// while the receiver settles.
	DefaultWarmup = 50

	// DefaultFloor is the sentinel threshold of RealMode: only values strictly
	// greater than it are kept.
	DefaultFloor = -200.0
)

// Mode selects how a complex sample is interpreted as a scalar power value.
type Mode string

var modeAliases = map[string]Mode{
	"magnitude": MagnitudeMode,
	"mag":       MagnitudeMode,
	"power":     MagnitudeMode,
	"real":      RealMode,
}

// ParseMode resolves a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown power mode '%s'", s)
}

// Extractor maps a sample sequence to a power sequence.
type Extractor interface {
	Extract(samples iq.Samples) []float64
	Mode() Mode
}

// NewExtractor returns the extractor for m, configured with its default parameters.
func NewExtractor(m Mode) (Extractor, error) {
	switch m {
	case MagnitudeMode:
		return MagnitudeSquared{}, nil
	case RealMode:
		return RealComponent{Warmup: DefaultWarmup, Floor: DefaultFloor}, nil
	default:
		return nil, fmt.Errorf("unknown power mode '%s'", m)
	}
}

// MagnitudeSquared yields the instantaneous linear power re² + im² of every sample.
type MagnitudeSquared struct{}

// Extract returns one power value per sample.
func (MagnitudeSquared) Extract(samples iq.Samples) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		re, im := float64(real(s)), float64(imag(s))
		out[i] = re*re + im*im
	}
	return out
}

func (MagnitudeSquared) Mode() Mode { return MagnitudeMode }

// RealComponent yields the real part of each sample as a relative signal level.
// The first Warmup samples are dropped and only values strictly above Floor are
// kept, so the returned sequence is usually shorter than the input.
type RealComponent struct {
	Warmup int
	Floor  float64
}

func (r RealComponent) Extract(samples iq.Samples) []float64 {
	if r.Warmup >= len(samples) {
		return []float64{}
	}
	samples = samples[max(r.Warmup, 0):]

	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if v := float64(real(s)); v > r.Floor {
			out = append(out, v)
		}
	}
	return out
}

func (RealComponent) Mode() Mode { return RealMode }
