package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestDecimalStringToWei(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
	}{
		{"usdt-six-decimals", "1234.567891", 6, "1234567891"},
		{"btc-eight-decimals", "0.00000001", 8, "1"},
		{"eth-eighteen-decimals", "1.5", 18, "1500000000000000000"},
		{"whole-number", "1000000", 18, "1000000000000000000000000"},
		{"zero", "0", 18, "0"},
		{"trailing-zeros", "0.100", 6, "100000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecimalStringToWei(tc.amount, tc.decimals)
			require.NoError(t, err)

			want, ok := sdkmath.NewIntFromString(tc.want)
			require.True(t, ok)
			require.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestDecimalStringToWeiRejectsPrecisionLoss(t *testing.T) {
	// 7 fractional digits cannot be represented at 6 decimals. Silently
	// truncating would underpay, so it must be an error.
	_, err := DecimalStringToWei("1.2345678", 6)
	require.ErrorIs(t, err, ErrPrecisionLoss)

	_, err = DecimalStringToWei("0.000000001", 8)
	require.ErrorIs(t, err, ErrPrecisionLoss)
}

func TestDecimalStringToWeiRejectsBadInput(t *testing.T) {
	_, err := DecimalStringToWei("not-a-number", 18)
	require.ErrorIs(t, err, ErrConversionFailed)

	_, err = DecimalStringToWei("-1.5", 18)
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = DecimalStringToWei("1.0", 19)
	require.ErrorIs(t, err, ErrInvalidDecimals)
}

func TestWeiToFloat64(t *testing.T) {
	amount, ok := sdkmath.NewIntFromString("1500000000000000000")
	require.True(t, ok)

	got, err := WeiToFloat64(amount, 18)
	require.NoError(t, err)
	require.InDelta(t, 1.5, got, 1e-12)

	got, err = WeiToFloat64(sdkmath.NewInt(1234567891), 6)
	require.NoError(t, err)
	require.InDelta(t, 1234.567891, got, 1e-9)
}

func TestWeiToFloat64RejectsNilAndNegative(t *testing.T) {
	_, err := WeiToFloat64(sdkmath.Int{}, 18)
	require.ErrorIs(t, err, ErrAmountNil)

	_, err = WeiToFloat64(sdkmath.NewInt(-1), 18)
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestFloat64ToWeiRoundTrip(t *testing.T) {
	for _, amount := range []float64{0, 0.00000001, 1.5, 93464.0, 1_000_000} {
		wei, err := Float64ToWei(amount, 8)
		require.NoError(t, err)

		back, err := WeiToFloat64(wei, 8)
		require.NoError(t, err)
		require.InDelta(t, amount, back, 1e-8)
	}
}

func TestPow10(t *testing.T) {
	require.Equal(t, int64(1), Pow10(0).Int64())
	require.Equal(t, int64(1_000_000), Pow10(6).Int64())
	require.Equal(t, "1000000000000000000", Pow10(18).String())
}
