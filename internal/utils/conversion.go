/*
This file converts on-chain base unit amounts into display values for dashboards and metrics.
Settlement math never goes through float64, only reporting does.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// MaxDecimals is the largest scale a LegacyDec can represent exactly.
const MaxDecimals = sdkmath.LegacyPrecision

var (
	ErrInvalidDecimals  = errors.New("decimals out of range")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// ToDisplay scales a base unit amount down by 10^decimals, e.g. 1500000 uatom with 6 decimals is 1.5.
// Negative amounts are allowed, they show up in deltas.
func ToDisplay(amount sdkmath.Int, decimals int) (float64, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidDecimals, decimals, MaxDecimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	scaled := sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(decimals))
	f, err := scaled.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s", ErrNotFinite, scaled)
	}
	return f, nil
}
