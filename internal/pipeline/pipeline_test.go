package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/iq-power/internal/decibel"
	"github.com/roman-kulish/iq-power/internal/iq"
	"github.com/roman-kulish/iq-power/internal/power"
)

func writeCapture(t *testing.T, samples iq.Samples) string {
	t.Helper()

	var buf bytes.Buffer
	if err := iq.Encode(&buf, samples); err != nil {
		t.Fatalf("Failed to encode capture: %v", err)
	}

	path := filepath.Join(t.TempDir(), "capture.fc32")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write capture: %v", err)
	}
	return path
}

func newConverter(t *testing.T) *decibel.Converter {
	t.Helper()

	c, err := decibel.New(decibel.DefaultPrecision)
	if err != nil {
		t.Fatalf("Failed to create converter: %v", err)
	}
	return c
}

func TestPipeline_SingleSampleDecibels(t *testing.T) {
	path := writeCapture(t, iq.Samples{complex(3, 4)})

	p, err := New(power.MagnitudeSquared{}, 1, WithDecibels(newConverter(t)))
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	series, err := p.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if series.Unit != UnitDecibel {
		t.Errorf("Expected unit %s, got %s", UnitDecibel, series.Unit)
	}
	if len(series.Values) != 1 {
		t.Fatalf("Expected 1 value, got %d", len(series.Values))
	}
	if series.Values[0] != 13.97940009 {
		t.Errorf("Expected 13.97940009 dB, got %.12g", series.Values[0])
	}
	if series.Source != path || series.SampleCount != 1 || series.Precision != decibel.DefaultPrecision {
		t.Errorf("Unexpected series metadata: %+v", series)
	}
}

func TestPipeline_ConstantCaptureRoundTrip(t *testing.T) {
	samples := make(iq.Samples, 1003)
	for i := range samples {
		samples[i] = complex(1.5, -2)
	}

	for _, n := range []int{1, 7, 100, 1003} {
		p, err := New(power.MagnitudeSquared{}, n)
		if err != nil {
			t.Fatalf("Failed to create pipeline: %v", err)
		}

		series, err := p.Process(context.Background(), samples)
		if err != nil {
			t.Fatalf("Process(n=%d) failed: %v", n, err)
		}
		if len(series.Values) != len(samples)/n {
			t.Errorf("n=%d: expected %d windows, got %d", n, len(samples)/n, len(series.Values))
		}
		for i, v := range series.Values {
			if v != 6.25 {
				t.Errorf("n=%d window %d: expected 6.25, got %g", n, i, v)
			}
		}
	}
}

func TestPipeline_ZeroPowerWindow(t *testing.T) {
	samples := iq.Samples{0, 0, complex(1, 0), complex(1, 0)}

	p, err := New(power.MagnitudeSquared{}, 2, WithDecibels(newConverter(t)))
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	series, err := p.Process(context.Background(), samples)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !math.IsNaN(series.Values[0]) {
		t.Errorf("Expected NaN for zero-power window, got %g", series.Values[0])
	}
	if series.Values[1] != 0 {
		t.Errorf("Expected 0 dB for unit power, got %g", series.Values[1])
	}
}

func TestPipeline_RealModeExcludesSentinel(t *testing.T) {
	samples := make(iq.Samples, 0, 40101)
	for range 20050 {
		samples = append(samples, complex(5, 0))
	}
	samples = append(samples, complex(-300, 0))
	for range 20050 {
		samples = append(samples, complex(5, 0))
	}

	ext, err := power.NewExtractor(power.RealMode)
	if err != nil {
		t.Fatalf("Failed to create extractor: %v", err)
	}
	p, err := New(ext, 20000)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	series, err := p.Process(context.Background(), samples)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if series.PowerCount != 40050 {
		t.Errorf("Expected 40050 retained values, got %d", series.PowerCount)
	}
	if len(series.Values) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(series.Values))
	}
	for i, v := range series.Values {
		if v != 5 {
			t.Errorf("Window %d: expected 5, got %g", i, v)
		}
	}
}

func TestPipeline_Errors(t *testing.T) {
	t.Run("invalid window", func(t *testing.T) {
		_, err := New(power.MagnitudeSquared{}, 0)

		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageConfig {
			t.Fatalf("Expected config stage error, got %v", err)
		}
		if !errors.Is(err, power.ErrInvalidWindowSize) {
			t.Errorf("Expected ErrInvalidWindowSize, got %v", err)
		}
	})

	t.Run("missing extractor", func(t *testing.T) {
		if _, err := New(nil, 10); err == nil {
			t.Error("Expected error for nil extractor")
		}
	})

	t.Run("missing input", func(t *testing.T) {
		p, err := New(power.MagnitudeSquared{}, 10)
		if err != nil {
			t.Fatalf("Failed to create pipeline: %v", err)
		}

		_, err = p.Run(context.Background(), filepath.Join(t.TempDir(), "missing.fc32"))

		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageLoad {
			t.Fatalf("Expected load stage error, got %v", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected os.ErrNotExist, got %v", err)
		}
	})

	t.Run("negative power in decibels", func(t *testing.T) {
		samples := make(iq.Samples, 60)
		for i := range samples {
			samples[i] = complex(-3, 0)
		}

		p, err := New(power.RealComponent{Warmup: 50, Floor: -200}, 5, WithDecibels(newConverter(t)))
		if err != nil {
			t.Fatalf("Failed to create pipeline: %v", err)
		}

		_, err = p.Process(context.Background(), samples)

		var domainErr *decibel.DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("Expected *decibel.DomainError, got %v", err)
		}

		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageDecibel {
			t.Errorf("Expected decibel stage error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p, err := New(power.MagnitudeSquared{}, 1)
		if err != nil {
			t.Fatalf("Failed to create pipeline: %v", err)
		}
		if _, err = p.Process(ctx, iq.Samples{1}); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
