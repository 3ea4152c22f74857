package iq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// SampleSize is the on-disk width of a single complex sample: two little-endian
// float32 values, real part first.
const SampleSize = 8

// ErrPartialSample is returned when the capture length is not a whole multiple of SampleSize.
var ErrPartialSample = errors.New("trailing bytes do not form a complete sample")

// Samples is an ordered sequence of complex baseband samples in storage order.
type Samples []complex64

// Load reads the raw interleaved fc32 capture at path.
func Load(path string) (samples Samples, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithError(f, &err)

	return Decode(f)
}

// Decode reads r to EOF and decodes it as interleaved little-endian float32 I/Q pairs.
func Decode(r io.Reader) (Samples, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	if rem := len(buf) % SampleSize; rem != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d left over", ErrPartialSample, len(buf), rem)
	}

	samples := make(Samples, len(buf)/SampleSize)
	for i := range samples {
		off := i * SampleSize
		re := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))
		samples[i] = complex(re, im)
	}
	return samples, nil
}

// Encode writes samples in the same layout Decode reads.
func Encode(w io.Writer, samples Samples) error {
	buf := make([]byte, len(samples)*SampleSize)
	for i, s := range samples {
		off := i * SampleSize
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(imag(s)))
	}
	_, err := w.Write(buf)
	return err
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
