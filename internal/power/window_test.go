package power

import (
	"errors"
	"testing"
)

func ramp(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = float64(i)
	}
	return p
}

func TestAverage_Length(t *testing.T) {
	for _, l := range []int{0, 1, 7, 20, 99, 100, 101} {
		for _, n := range []int{1, 2, 3, 10, 20, 150} {
			got, err := Average(ramp(l), n)
			if err != nil {
				t.Fatalf("Average(len=%d, n=%d) failed: %v", l, n, err)
			}
			if len(got) != l/n {
				t.Errorf("Average(len=%d, n=%d): expected %d windows, got %d", l, n, l/n, len(got))
			}
		}
	}
}

func TestAverage_Means(t *testing.T) {
	// windows [0 1 2] [3 4 5] [6 7 8], remainder [9] dropped
	got, err := Average(ramp(10), 3)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}

	expected := []float64{1, 4, 7}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Window %d: expected %g, got %g", i, expected[i], got[i])
		}
	}
}

func TestAverage_ShorterThanWindow(t *testing.T) {
	got, err := Average(ramp(5), 20000)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil result, got %v", got)
	}
}

func TestAverage_InvalidWindow(t *testing.T) {
	for _, n := range []int{0, -1, -20000} {
		if _, err := Average(ramp(10), n); !errors.Is(err, ErrInvalidWindowSize) {
			t.Errorf("Average(n=%d): expected ErrInvalidWindowSize, got %v", n, err)
		}
	}
}

func TestAverage_SequentialSummation(t *testing.T) {
	// 1e16 + 1 + 1 - 1e16 is 0 when summed left to right in float64,
	// 2 when the small terms are added first.
	p := []float64{1e16, 1, 1, -1e16}

	got, err := Average(p, 4)
	if err != nil {
		t.Fatalf("Average failed: %v", err)
	}
	if got[0] != 0 {
		t.Errorf("Expected left-to-right sum to yield 0, got %g", got[0])
	}
}

func TestAverage_ConstantCapture(t *testing.T) {
	samples := constantSamples(1000, complex(0.5, -1.5))
	p := MagnitudeSquared{}.Extract(samples)

	for _, n := range []int{1, 10, 333, 1000} {
		got, err := Average(p, n)
		if err != nil {
			t.Fatalf("Average(n=%d) failed: %v", n, err)
		}
		for i, v := range got {
			if v != 2.5 {
				t.Errorf("n=%d window %d: expected 2.5, got %g", n, i, v)
			}
		}
	}
}
