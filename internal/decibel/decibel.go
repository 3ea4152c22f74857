// Package decibel converts linear power values to decibels using fixed-precision
// decimal arithmetic, so small magnitudes are not distorted by binary rounding in
// the logarithm.
package decibel

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// DefaultPrecision is the number of significant decimal digits carried through the
// logarithm and the final scaling.
const DefaultPrecision = 10

// ErrInvalidPrecision is returned by New for a precision of zero or one too large to carry guard digits.
var ErrInvalidPrecision = errors.New("precision out of range")

// DomainError reports a negative linear power value, for which the logarithm is undefined.
type DomainError struct {
	Index int
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("negative linear power %g at window %d", e.Value, e.Index)
}

// guardDigits are carried by the logarithm beyond the working precision so that
// rounding its result to the working precision is correct.
const guardDigits = 10

// Converter maps linear power to decibels with a fixed decimal precision.
type Converter struct {
	ctx  *apd.Context
	wide *apd.Context
	ten  *apd.Decimal
}

// New creates a Converter carrying precision significant digits.
func New(precision uint32) (*Converter, error) {
	if precision == 0 || precision > math.MaxUint32-guardDigits {
		return nil, ErrInvalidPrecision
	}
	return &Converter{
		ctx:  apd.BaseContext.WithPrecision(precision),
		wide: apd.BaseContext.WithPrecision(precision + guardDigits),
		ten:  apd.New(10, 0),
	}, nil
}

// Precision returns the number of significant digits used.
func (c *Converter) Precision() uint32 {
	return c.ctx.Precision
}

// Convert returns 10·log10(p) for every p in linear. Zero power has no logarithm and
// yields NaN; a negative value aborts the conversion with a *DomainError.
func (c *Converter) Convert(linear []float64) ([]float64, error) {
	out := make([]float64, len(linear))
	for i, p := range linear {
		if p < 0 {
			return nil, &DomainError{Index: i, Value: p}
		}
		v, err := c.decibel(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Converter) decibel(p float64) (float64, error) {
	switch {
	case p == 0, math.IsNaN(p):
		return math.NaN(), nil
	case math.IsInf(p, 1):
		return p, nil
	}

	var lg, db apd.Decimal
	if _, err := c.wide.Log10(&lg, exactDecimal(p)); err != nil {
		return 0, fmt.Errorf("log10(%g): %w", p, err)
	}
	if _, err := c.ctx.Round(&lg, &lg); err != nil {
		return 0, fmt.Errorf("rounding log10(%g): %w", p, err)
	}
	if _, err := c.ctx.Mul(&db, c.ten, &lg); err != nil {
		return 0, fmt.Errorf("scaling log10(%g): %w", p, err)
	}
	return db.Float64()
}

// exactDecimal returns the exact decimal value of the finite float f. A binary
// fraction m·2^-k equals m·5^k·10^-k, so no digits are lost.
func exactDecimal(f float64) *apd.Decimal {
	frac, exp := math.Frexp(f)
	mant := new(big.Int).SetInt64(int64(math.Ldexp(frac, 53)))
	exp -= 53

	if exp >= 0 {
		mant.Lsh(mant, uint(exp))
		return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(mant), 0)
	}

	k := int64(-exp)
	pow5 := new(big.Int).Exp(big.NewInt(5), big.NewInt(k), nil)
	mant.Mul(mant, pow5)
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(mant), int32(-k))
}
