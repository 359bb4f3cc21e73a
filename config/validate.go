package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"trancheclear/native/tranche"
)

// ValidateRegistry checks that pool ids are unique and every contract address
// is well formed.
func ValidateRegistry(reg *Registry) error {
	if reg == nil || len(reg.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	seen := make(map[string]struct{}, len(reg.Pools))
	for _, pool := range reg.Pools {
		if pool.ID == "" {
			return fmt.Errorf("pool: ID required")
		}
		if _, dup := seen[pool.ID]; dup {
			return fmt.Errorf("pool %s: duplicate ID", pool.ID)
		}
		seen[pool.ID] = struct{}{}
		fields := []struct{ name, value string }{
			{"Coordinator", pool.Coordinator},
			{"Assessor", pool.Assessor},
			{"Reserve", pool.Reserve},
			{"NAVFeed", pool.NAVFeed},
		}
		for _, field := range fields {
			if !common.IsHexAddress(field.value) {
				return fmt.Errorf("pool %s: %s %q is not an address", pool.ID, field.name, field.value)
			}
			if (common.HexToAddress(field.value) == common.Address{}) {
				return fmt.Errorf("pool %s: %s must not be the zero address", pool.ID, field.name)
			}
		}
		if pool.Weights != nil {
			if _, err := pool.Weights.Resolve(tranche.DefaultWeights()); err != nil {
				return fmt.Errorf("pool %s: %w", pool.ID, err)
			}
		}
	}
	return nil
}

// Resolve overlays the configured values on base. Empty entries keep the base
// weight.
func (w *Weights) Resolve(base tranche.Weights) (tranche.Weights, error) {
	if w == nil {
		return base, base.Validate()
	}
	out := base
	entries := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"SeniorRedeem", w.SeniorRedeem, &out.SeniorRedeem},
		{"JuniorRedeem", w.JuniorRedeem, &out.JuniorRedeem},
		{"JuniorSupply", w.JuniorSupply, &out.JuniorSupply},
		{"SeniorSupply", w.SeniorSupply, &out.SeniorSupply},
	}
	for _, entry := range entries {
		if entry.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(entry.raw)
		if err != nil {
			return tranche.Weights{}, fmt.Errorf("weights.%s: %w", entry.name, err)
		}
		*entry.dst = value
	}
	if err := out.Validate(); err != nil {
		return tranche.Weights{}, err
	}
	return out, nil
}

// Addresses returns the parsed contract addresses of the pool.
func (p Pool) Addresses() (coordinator, assessor, reserve, navFeed common.Address) {
	return common.HexToAddress(p.Coordinator),
		common.HexToAddress(p.Assessor),
		common.HexToAddress(p.Reserve),
		common.HexToAddress(p.NAVFeed)
}
