/*

Pure fixed-point conversion math between APR percentages, base-asset stake
amounts and per-second reward rates. No I/O.

All on-chain-bound amounts stay in sdkmath.Int. The conversion rate (a float
ratio of two USD quotes) enters integer math through an 18-decimal string
format, never through a raw float multiplication; binary-float rounding on
very small or very large rates would otherwise leak into the wei amounts.

*/

package rewardmath

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/nbcex/reward-operator/internal/utils"
)

const (
	// SecondsPerYear is the annualization base for all APR math.
	SecondsPerYear int64 = 31_536_000

	// conversionRateDecimals is the fixed-point scale applied to the
	// reward/base conversion rate before it enters integer math.
	conversionRateDecimals = 18

	// aprScale retains two decimal digits of APR precision through integer
	// division: APR% is multiplied by 10^4, and the percent division by 100
	// folds in, giving a combined divisor of 10^6.
	aprScale        = 10_000
	aprScaleDivisor = 1_000_000
)

var (
	ErrInvalidAPR            = errors.New("target APR is invalid")
	ErrInvalidConversionRate = errors.New("conversion rate is invalid")
	ErrInvalidDuration       = errors.New("rewards duration is invalid")
	ErrInvalidStake          = errors.New("total staked amount is invalid")
)

// ScaleConversionRate converts a float conversion rate ("1 reward unit =
// rate base units") into an integer scaled by 10^18. The float is formatted
// to a fixed 18-decimal string and parsed as an exact decimal, so the scaled
// integer carries the full printed precision of the rate.
func ScaleConversionRate(rate float64) (sdkmath.Int, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: not finite: %f", ErrInvalidConversionRate, rate)
	}
	if rate <= 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: must be positive: %f", ErrInvalidConversionRate, rate)
	}

	rateStr := strconv.FormatFloat(rate, 'f', conversionRateDecimals, 64)
	dec, err := sdkmath.LegacyNewDecFromStr(rateStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q: %w", ErrInvalidConversionRate, rateStr, err)
	}

	scaled := dec.MulInt(utils.Pow10(conversionRateDecimals)).TruncateInt()
	if !scaled.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: underflows 18-decimal fixed point: %f", ErrInvalidConversionRate, rate)
	}
	return scaled, nil
}

// RateFromAPR derives the per-second reward rate (reward-token wei/sec) that
// realizes targetAPRPercent on totalStakedWei, plus the total reward amount to
// notify for one reward epoch of rewardsDuration seconds.
//
// The per-second rate rounds up, so the realized APR is never strictly below
// the target due to integer truncation. The notify total rounds up for the
// same reason: the contract re-derives its internal rate by truncating
// reward/duration.
func RateFromAPR(
	targetAPRPercent float64,
	totalStakedWei sdkmath.Int,
	conversionRate float64,
	rewardDecimals uint8,
	rewardsDuration int64,
) (ratePerSec sdkmath.Int, totalForDuration sdkmath.Int, err error) {
	if math.IsNaN(targetAPRPercent) || math.IsInf(targetAPRPercent, 0) || targetAPRPercent < 0 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %f", ErrInvalidAPR, targetAPRPercent)
	}
	if totalStakedWei.IsNil() || totalStakedWei.IsNegative() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrInvalidStake
	}
	if rewardsDuration <= 0 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %d seconds", ErrInvalidDuration, rewardsDuration)
	}
	if targetAPRPercent == 0 || totalStakedWei.IsZero() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}

	conversionScaled, err := ScaleConversionRate(conversionRate)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	// annualRewardBaseWei = totalStaked * APR / 100, with APR carried at
	// 10^4 scale so two decimal digits of the percentage survive.
	aprScaled := sdkmath.NewInt(int64(math.Round(targetAPRPercent * aprScale)))
	annualRewardBaseWei := totalStakedWei.Mul(aprScaled).QuoRaw(aprScaleDivisor)

	// annualRewardTokenWei = annualRewardBaseWei * 10^decimals / conversionScaled.
	// The base asset's 18 decimals cancel against the 10^18 rate scale.
	annualRewardTokenWei := annualRewardBaseWei.
		Mul(utils.Pow10(rewardDecimals)).
		Quo(conversionScaled)

	ratePerSec = ceilDiv(annualRewardTokenWei, sdkmath.NewInt(SecondsPerYear))

	if rewardsDuration == SecondsPerYear {
		totalForDuration = annualRewardTokenWei
	} else {
		totalForDuration = ceilDiv(
			annualRewardTokenWei.MulRaw(rewardsDuration),
			sdkmath.NewInt(SecondsPerYear),
		)
	}

	return ratePerSec, totalForDuration, nil
}

// APRFromRate converts a live per-second reward rate back into an APR
// percentage. Floating point enters only at this final display/verification
// stage; the precision loss is acceptable there, unlike on the on-chain
// integer path. Returns 0 when nothing is staked.
func APRFromRate(
	ratePerSec sdkmath.Int,
	totalStakedWei sdkmath.Int,
	conversionRate float64,
	rewardDecimals uint8,
) float64 {
	if ratePerSec.IsNil() || totalStakedWei.IsNil() || totalStakedWei.IsZero() {
		return 0
	}
	if !ratePerSec.IsPositive() || totalStakedWei.IsNegative() {
		return 0
	}

	conversionScaled, err := ScaleConversionRate(conversionRate)
	if err != nil {
		return 0
	}

	annualRewardTokenWei := ratePerSec.MulRaw(SecondsPerYear)
	annualRewardBaseWei := annualRewardTokenWei.
		Mul(conversionScaled).
		Quo(utils.Pow10(rewardDecimals))

	apr := sdkmath.LegacyNewDecFromInt(annualRewardBaseWei).
		QuoInt(totalStakedWei).
		MulInt64(100)

	aprFloat, err := apr.Float64()
	if err != nil || math.IsNaN(aprFloat) || math.IsInf(aprFloat, 0) {
		return 0
	}
	return aprFloat
}

// MinStakeThresholdForTargetAPR returns the minimum total-staked amount (base
// wei) at or above which the given per-second reward rate does not exceed
// targetAPRPercent. Used to gate new stake deposits. Returns zero when the
// rate is zero or the target APR is not positive.
//
// rewardsDuration participates only as a sanity input; annualizing the
// epoch reward cancels it out of the closed form.
func MinStakeThresholdForTargetAPR(
	ratePerSec sdkmath.Int,
	conversionRate float64,
	rewardDecimals uint8,
	targetAPRPercent float64,
	rewardsDuration int64,
) sdkmath.Int {
	if ratePerSec.IsNil() || !ratePerSec.IsPositive() {
		return sdkmath.ZeroInt()
	}
	if math.IsNaN(targetAPRPercent) || math.IsInf(targetAPRPercent, 0) || targetAPRPercent <= 0 {
		return sdkmath.ZeroInt()
	}
	if rewardsDuration <= 0 {
		return sdkmath.ZeroInt()
	}

	conversionScaled, err := ScaleConversionRate(conversionRate)
	if err != nil {
		return sdkmath.ZeroInt()
	}

	annualRewardTokenWei := ratePerSec.MulRaw(SecondsPerYear)
	annualRewardBaseWei := annualRewardTokenWei.
		Mul(conversionScaled).
		Quo(utils.Pow10(rewardDecimals))

	// totalStaked_min = annualRewardBaseWei * 100 / APR, with the APR at
	// 10^4 scale. Rounds up so the threshold is never permissive.
	aprScaled := sdkmath.NewInt(int64(math.Round(targetAPRPercent * aprScale)))
	if !aprScaled.IsPositive() {
		return sdkmath.ZeroInt()
	}

	return ceilDiv(annualRewardBaseWei.MulRaw(aprScaleDivisor), aprScaled)
}

// ceilDiv divides a by b rounding up. Both operands must be non-negative and
// b must be positive.
func ceilDiv(a, b sdkmath.Int) sdkmath.Int {
	return a.Add(b.SubRaw(1)).Quo(b)
}
