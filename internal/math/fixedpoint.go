package math

import (
	stdmath "math"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// PriceConfig is the default price scale: one quote unit per base unit is 100.
	PriceConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100}
)

// NewDecimalConfig derives the precision from a power-of-ten scale. Scales
// that are not a power of ten report precision -1.
func NewDecimalConfig(scale int64) DecimalConfig {
	precision := 0
	for s := scale; s > 1; s /= 10 {
		if s%10 != 0 {
			return DecimalConfig{DecimalPrecision: -1, Scale: scale}
		}
		precision++
	}
	return DecimalConfig{DecimalPrecision: precision, Scale: scale}
}

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown
)

// MultiplyInt128 performs a * b without overflow. The caller owns the result.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding. Operands are
// non-negative; a quotient beyond int64 saturates at math.MaxInt64.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	defer putInt128(quotient)
	defer putInt128(remainder)

	quotient.DivMod(numerator, denom, remainder)
	if !quotient.IsInt64() {
		return stdmath.MaxInt64
	}
	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 && result%2 != 0 {
			result++
		}
	}

	return result
}

// QuoteCost returns qty * price / priceScale, truncated. Truncation always
// favours custody: a buyer is never charged less than the seller receives.
func QuoteCost(qty, price, priceScale int64) int64 {
	product := MultiplyInt128(qty, price)
	defer putInt128(product)
	return DivideInt128(product, priceScale, RoundDown)
}

// MaxAffordable returns the largest quantity whose cost at price fits in
// deposit. A zero price costs nothing, so any quantity is affordable.
func MaxAffordable(deposit, price, priceScale int64) int64 {
	if price <= 0 {
		return stdmath.MaxInt64
	}
	product := MultiplyInt128(deposit, priceScale)
	defer putInt128(product)
	return DivideInt128(product, price, RoundDown)
}

// AveragePrice returns totalCost * priceScale / qty, truncated, or 0 for no fills.
func AveragePrice(totalCost, qty, priceScale int64) int64 {
	if qty == 0 {
		return 0
	}
	product := MultiplyInt128(totalCost, priceScale)
	defer putInt128(product)
	return DivideInt128(product, qty, RoundDown)
}

// Midpoint returns (a + b) / 2 truncated toward zero for non-negative inputs
// without overflowing int64.
func Midpoint(a, b int64) int64 {
	return a/2 + b/2 + (a&1)&(b&1)
}

// Format renders a fixed-point value as a decimal string, e.g. 1234 at
// precision 2 becomes "12.34".
func Format(value int64, cfg DecimalConfig) string {
	if cfg.DecimalPrecision < 0 {
		return decimal.NewFromInt(value).Div(decimal.NewFromInt(cfg.Scale)).String()
	}
	return decimal.New(value, -int32(cfg.DecimalPrecision)).StringFixed(int32(cfg.DecimalPrecision))
}

// Parse converts a decimal string into fixed-point units, truncating extra digits.
func Parse(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(cfg.Scale)).Truncate(0).IntPart(), nil
}
