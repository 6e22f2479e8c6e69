package asset

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Prices are decimal.Decimal values: an arbitrary precision big.Int mantissa
// with a base-10 exponent. Addition, subtraction and comparison are exact.
// Division is the only lossy operation and always truncates toward zero at
// RatioPlaces so a computed spread is never overstated.

// RatioPlaces is the number of fractional digits kept by divisions.
const RatioPlaces int32 = 36

var (
	ErrNonPositivePrice = errors.New("asset: price must be positive")
	ErrDivisionByZero   = errors.New("asset: division by zero")
	ErrNilAsset         = errors.New("asset: nil asset")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)

	// 2^-192 == 5^192 * 10^-192, so Q96 prices convert to decimals exactly.
	fivePow192 = new(big.Int).Exp(big.NewInt(5), big.NewInt(192), nil)
)

// ParsePrice parses a venue price string. Zero, negative and malformed values are rejected.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("asset: parse price %q: %w", s, err)
	}
	if err := ValidatePrice(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidatePrice rejects non-positive prices.
func ValidatePrice(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNonPositivePrice, d.String())
	}
	return nil
}

// Ratio returns num/den truncated toward zero at RatioPlaces.
func Ratio(num, den decimal.Decimal) (decimal.Decimal, error) {
	if den.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := num.QuoRem(den, RatioPlaces)
	return q, nil
}

// Percent returns num/den expressed in percent, truncated toward zero at RatioPlaces.
func Percent(num, den decimal.Decimal) (decimal.Decimal, error) {
	return Ratio(num.Mul(hundred), den)
}

// Invert returns 1/p truncated toward zero.
func Invert(p decimal.Decimal) (decimal.Decimal, error) {
	return Ratio(one, p)
}

// PriceFromSqrtX96 converts a Uniswap sqrtPriceX96 into the price of token0
// denominated in token1, adjusted for both tokens' decimals. The result is exact.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, token0, token1 *Asset) (decimal.Decimal, error) {
	if token0 == nil || token1 == nil {
		return decimal.Zero, ErrNilAsset
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: sqrtPriceX96", ErrNonPositivePrice)
	}

	// raw = sqrtPriceX96^2 / 2^192, in token1 base units per token0 base unit.
	mantissa := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	mantissa.Mul(mantissa, fivePow192)
	raw := decimal.NewFromBigInt(mantissa, -192)

	shift := int32(token0.Decimals()) - int32(token1.Decimals())
	return raw.Shift(shift), nil
}

// ApplyFee widens a mid price by a fee in parts per million: the bid is
// rounded down and the ask rounded up so neither side looks better than it is.
func ApplyFee(mid decimal.Decimal, feePPM uint32) (bid, ask decimal.Decimal) {
	million := decimal.NewFromInt(1_000_000)
	fee := decimal.NewFromInt(int64(feePPM))

	// Dividing by 10^6 is a shift, so both products stay exact before rounding.
	bid = mid.Mul(million.Sub(fee)).Shift(-6)
	ask = mid.Mul(million.Add(fee)).Shift(-6)

	return bid.RoundFloor(RatioPlaces), ask.RoundCeil(RatioPlaces)
}
