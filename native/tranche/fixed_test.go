package tranche

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFixedRoundTrip(t *testing.T) {
	raw, ok := new(big.Int).SetString("1500000000000000000123", 10)
	require.True(t, ok)
	value, err := DefaultCurrencyScale.FromFixed(raw)
	require.NoError(t, err)
	require.Equal(t, "1500.000000000000000123", value.String())

	back, err := DefaultCurrencyScale.ToFixed(value)
	require.NoError(t, err)
	require.Equal(t, 0, back.Cmp(raw))
}

func TestToFixedTruncates(t *testing.T) {
	value := decimal.RequireFromString("0.9999999999999999999999")
	raw, err := DefaultCurrencyScale.ToFixed(value)
	require.NoError(t, err)
	require.Equal(t, "999999999999999999", raw.String())

	raw, err = Scale{Decimals: 2}.ToFixed(decimal.RequireFromString("1.239"))
	require.NoError(t, err)
	require.Equal(t, "123", raw.String())
}

func TestFixedRejectsNegative(t *testing.T) {
	_, err := DefaultCurrencyScale.FromFixed(big.NewInt(-1))
	require.ErrorIs(t, err, errNegativeFixed)
	_, err = DefaultCurrencyScale.ToFixed(decimal.NewFromInt(-1))
	require.ErrorIs(t, err, errNegativeFixed)
}

func TestToUint256Overflow(t *testing.T) {
	huge := decimal.New(1, 60)
	_, err := DefaultCurrencyScale.ToUint256(huge)
	require.ErrorIs(t, err, errFixedOverflow)

	word, err := DefaultRatioScale.ToUint256(decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	require.Equal(t, "250000000000000000000000000", word.Dec())
}

func TestFloorRat(t *testing.T) {
	got := Scale{Decimals: 3}.floorRat(big.NewRat(2, 3))
	require.Equal(t, "0.666", got.String())
}

func TestScaleValidate(t *testing.T) {
	require.NoError(t, DefaultRatioScale.Validate())
	require.Error(t, Scale{Decimals: -1}.Validate())
}
