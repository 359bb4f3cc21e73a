package tranche

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	errNegativeFixed = errors.New("tranche: fixed-point value must be non-negative")
	errFixedOverflow = errors.New("tranche: fixed-point value overflows uint256")
)

// Scale describes how the ledger encodes a decimal quantity as an unsigned
// integer carrying Decimals fractional digits. Currency amounts default to 18
// decimals and ratios to 27 (ray) but deployments override both from
// configuration.
type Scale struct {
	Decimals int32
}

var (
	// DefaultCurrencyScale matches ERC-20 tokens with 18 decimals.
	DefaultCurrencyScale = Scale{Decimals: 18}
	// DefaultRatioScale is the 1e27 ray precision used for ratios and fees.
	DefaultRatioScale = Scale{Decimals: 27}
)

// Validate ensures the scale can be represented.
func (s Scale) Validate() error {
	if s.Decimals < 0 || s.Decimals > 77 {
		return fmt.Errorf("tranche: scale decimals %d out of range", s.Decimals)
	}
	return nil
}

// Unit returns 10^Decimals.
func (s Scale) Unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.Decimals)), nil)
}

// FromFixed converts a raw ledger integer into an exact decimal. A nil input
// is treated as zero.
func (s Scale) FromFixed(raw *big.Int) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	if raw.Sign() < 0 {
		return decimal.Zero, errNegativeFixed
	}
	return decimal.NewFromBigInt(raw, -s.Decimals), nil
}

// MustFromFixed is FromFixed for trusted constants.
func (s Scale) MustFromFixed(raw *big.Int) decimal.Decimal {
	value, err := s.FromFixed(raw)
	if err != nil {
		panic(err)
	}
	return value
}

// ToFixed converts a decimal back to the ledger representation, truncating any
// precision beyond the scale. Rounding is never upwards.
func (s Scale) ToFixed(value decimal.Decimal) (*big.Int, error) {
	if value.Sign() < 0 {
		return nil, errNegativeFixed
	}
	return value.Shift(s.Decimals).BigInt(), nil
}

// ToUint256 is ToFixed with an overflow check for 256-bit ledger words.
func (s Scale) ToUint256(value decimal.Decimal) (*uint256.Int, error) {
	raw, err := s.ToFixed(value)
	if err != nil {
		return nil, err
	}
	word, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, errFixedOverflow
	}
	return word, nil
}

// Truncate drops precision the ledger cannot carry.
func (s Scale) Truncate(value decimal.Decimal) decimal.Decimal {
	return value.Truncate(s.Decimals)
}

// floorRat converts an exact rational into a decimal at the scale, rounding
// towards negative infinity.
func (s Scale) floorRat(r *big.Rat) decimal.Decimal {
	if r == nil || r.Sign() == 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(r.Num(), s.Unit())
	quo := new(big.Int).Div(num, r.Denom())
	return decimal.NewFromBigInt(quo, -s.Decimals)
}
