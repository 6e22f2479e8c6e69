package domain

import (
	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

// Thresholds are the minimum spread a direction must reach to qualify.
type Thresholds struct {
	MinProfitPct decimal.Decimal // percent
	MinProfitAbs decimal.Decimal // quote units
}

// NewThresholds validates both thresholds.
func NewThresholds(minPct, minAbs decimal.Decimal) (Thresholds, error) {
	th := Thresholds{MinProfitPct: minPct, MinProfitAbs: minAbs}
	if err := th.Validate(); err != nil {
		return Thresholds{}, err
	}
	return th, nil
}

// Validate rejects negative thresholds.
func (t Thresholds) Validate() error {
	if t.MinProfitPct.IsNegative() {
		return apperror.New(apperror.CodeInvalidThreshold, apperror.WithContext("min profit pct is negative"))
	}
	if t.MinProfitAbs.IsNegative() {
		return apperror.New(apperror.CodeInvalidThreshold, apperror.WithContext("min profit abs is negative"))
	}
	return nil
}

// Qualifies reports whether a spread meets both thresholds. A spread of zero
// or less never qualifies; a spread equal to a threshold does.
func (t Thresholds) Qualifies(abs, pct decimal.Decimal) bool {
	return abs.IsPositive() &&
		abs.GreaterThanOrEqual(t.MinProfitAbs) &&
		pct.GreaterThanOrEqual(t.MinProfitPct)
}
