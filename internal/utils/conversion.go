/*
This file contains common utility functions for converting between human
decimal token amounts and base-unit (wei) integers, with precision handling.

Amounts that end up on-chain must go through the string-based path: formatting
through a decimal string avoids the binary-float rounding that a naive
float64 * 10^decimals multiplication introduces.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidDecimals  = errors.New("decimals value is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrPrecisionLoss    = errors.New("amount has more fractional digits than the token supports")
)

// Pow10 returns 10^decimals as an Int.
func Pow10(decimals uint8) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, int(decimals))
}

// DecimalStringToWei converts a human-readable decimal amount string into an
// exact base-unit integer. No float intermediate is involved; amounts with
// more fractional digits than the token supports are rejected rather than
// silently truncated.
func DecimalStringToWei(amount string, decimals uint8) (sdkmath.Int, error) {
	if decimals > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}

	dec, err := sdkmath.LegacyNewDecFromStr(amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q is not a valid decimal: %w", ErrConversionFailed, amount, err)
	}
	if dec.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	scaled := dec.MulInt(Pow10(decimals))
	if !scaled.IsInteger() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q at %d decimals", ErrPrecisionLoss, amount, decimals)
	}

	return scaled.TruncateInt(), nil
}

// WeiToFloat64 converts a base-unit integer to float64 for display and
// verification output. Not for on-chain amounts.
func WeiToFloat64(amount sdkmath.Int, decimals uint8) (float64, error) {
	if decimals > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).QuoInt(Pow10(decimals))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToWei converts a float64 to a base-unit integer by formatting the
// value as a decimal string first. Display-precision inputs only; exact
// amounts should come in as strings via DecimalStringToWei.
func Float64ToWei(amount float64, decimals uint8) (sdkmath.Int, error) {
	if decimals > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	amountStr := fmt.Sprintf("%.*f", decimals, amount)
	return DecimalStringToWei(amountStr, decimals)
}
