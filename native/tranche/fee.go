package tranche

import (
	"sync"

	"github.com/shopspring/decimal"
)

const secondsPerYear = 31_536_000

var one = decimal.NewFromInt(1)

// RateCache memoises conversions between a per-second compounding fee and the
// simple annual interest rate it represents. Both directions are pure, so
// entries never need invalidating; the cache is owned by whichever component
// renders rates and lives for the process.
type RateCache struct {
	scale Scale

	mu     sync.Mutex
	toRate map[string]decimal.Decimal
	toFee  map[string]decimal.Decimal
}

// NewRateCache creates a cache producing fees truncated to the ratio scale.
func NewRateCache(scale Scale) *RateCache {
	return &RateCache{
		scale:  scale,
		toRate: make(map[string]decimal.Decimal),
		toFee:  make(map[string]decimal.Decimal),
	}
}

// InterestRate converts a per-second fee such as 1.000000003170979198 into an
// annual rate such as 0.1.
func (c *RateCache) InterestRate(fee decimal.Decimal) decimal.Decimal {
	key := fee.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate, ok := c.toRate[key]; ok {
		return rate
	}
	rate := fee.Sub(one).Mul(decimal.NewFromInt(secondsPerYear))
	if rate.Sign() < 0 {
		rate = decimal.Zero
	}
	c.toRate[key] = rate
	return rate
}

// Fee converts an annual rate into the per-second fee charged by the ledger.
func (c *RateCache) Fee(rate decimal.Decimal) decimal.Decimal {
	key := rate.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if fee, ok := c.toFee[key]; ok {
		return fee
	}
	perSecond := rate.DivRound(decimal.NewFromInt(secondsPerYear), c.scale.Decimals+1)
	fee := c.scale.Truncate(one.Add(perSecond))
	c.toFee[key] = fee
	return fee
}

// Len reports the number of memoised entries in both directions.
func (c *RateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.toRate) + len(c.toFee)
}
