package tranche

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRateCacheConversions(t *testing.T) {
	cache := NewRateCache(DefaultRatioScale)

	fee := cache.Fee(decimal.RequireFromString("0.1"))
	require.Equal(t, "1.00000000317097919837645865", fee.String())

	rate := cache.InterestRate(fee)
	require.True(t, rate.Round(9).Equal(decimal.RequireFromString("0.1")), "got %s", rate)
	require.Equal(t, 2, cache.Len())

	again := cache.Fee(decimal.RequireFromString("0.1"))
	require.True(t, again.Equal(fee))
	require.Equal(t, 2, cache.Len())
}

func TestRateCacheClampsBelowOne(t *testing.T) {
	cache := NewRateCache(DefaultRatioScale)
	require.True(t, cache.InterestRate(decimal.RequireFromString("0.99")).IsZero())
}
