package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadPools loads and validates the pool registry at the given path.
func LoadPools(path string) (*Registry, error) {
	reg := &Registry{}
	meta, err := toml.DecodeFile(path, reg)
	if err != nil {
		return nil, fmt.Errorf("decode pool registry %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("pool registry %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	for i := range reg.Pools {
		normalise(&reg.Pools[i])
	}
	if err := ValidateRegistry(reg); err != nil {
		return nil, fmt.Errorf("pool registry %s: %w", path, err)
	}
	return reg, nil
}

// SavePools writes the registry, creating parent directories as needed.
func SavePools(path string, reg *Registry) error {
	if err := ValidateRegistry(reg); err != nil {
		return err
	}
	return persist(path, reg)
}

func normalise(pool *Pool) {
	pool.ID = strings.TrimSpace(pool.ID)
	pool.Coordinator = strings.TrimSpace(pool.Coordinator)
	pool.Assessor = strings.TrimSpace(pool.Assessor)
	pool.Reserve = strings.TrimSpace(pool.Reserve)
	pool.NAVFeed = strings.TrimSpace(pool.NAVFeed)
}

func persist(path string, reg *Registry) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(reg)
}
