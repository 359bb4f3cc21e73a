package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"trancheclear/native/tranche"
)

const samplePools = `
[[Pool]]
ID = "alpha"
Coordinator = "0x00000000000000000000000000000000000000c0"
Assessor = "0x00000000000000000000000000000000000000a5"
Reserve = "0x00000000000000000000000000000000000000e5"
NAVFeed = "0x00000000000000000000000000000000000000f0"

[[Pool]]
ID = " beta "
Coordinator = "0x00000000000000000000000000000000000001c0"
Assessor = "0x00000000000000000000000000000000000001a5"
Reserve = "0x00000000000000000000000000000000000001e5"
NAVFeed = "0x00000000000000000000000000000000000001f0"
PauseOnStart = true

[Pool.Weights]
SeniorSupply = "5000"
`

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pools.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write pools: %v", err)
	}
	return path
}

func TestLoadPoolsParsesRegistry(t *testing.T) {
	reg, err := LoadPools(writeFile(t, samplePools))
	require.NoError(t, err)
	require.Len(t, reg.Pools, 2)

	beta, ok := reg.Lookup("beta")
	require.True(t, ok)
	require.True(t, beta.PauseOnStart)
	weights, err := beta.Weights.Resolve(tranche.DefaultWeights())
	require.NoError(t, err)
	require.Equal(t, "5000", weights.SeniorSupply.String())
	require.Equal(t, "1000000", weights.SeniorRedeem.String())

	alpha, ok := reg.Lookup("alpha")
	require.True(t, ok)
	coordinator, _, _, navFeed := alpha.Addresses()
	require.Equal(t, "0x00000000000000000000000000000000000000C0", coordinator.Hex())
	require.Equal(t, "0x00000000000000000000000000000000000000F0", navFeed.Hex())
	_, ok = reg.Lookup("gamma")
	require.False(t, ok)
}

func TestLoadPoolsRejectsInvalidRegistries(t *testing.T) {
	cases := map[string]string{
		"empty": ``,
		"unknown key": `
[[Pool]]
ID = "alpha"
Coordinator = "0x00000000000000000000000000000000000000c0"
Assessor = "0x00000000000000000000000000000000000000a5"
Reserve = "0x00000000000000000000000000000000000000e5"
NAVFeed = "0x00000000000000000000000000000000000000f0"
Shelf = "0x00000000000000000000000000000000000000f1"
`,
		"bad address": `
[[Pool]]
ID = "alpha"
Coordinator = "not-an-address"
Assessor = "0x00000000000000000000000000000000000000a5"
Reserve = "0x00000000000000000000000000000000000000e5"
NAVFeed = "0x00000000000000000000000000000000000000f0"
`,
		"zero address": `
[[Pool]]
ID = "alpha"
Coordinator = "0x0000000000000000000000000000000000000000"
Assessor = "0x00000000000000000000000000000000000000a5"
Reserve = "0x00000000000000000000000000000000000000e5"
NAVFeed = "0x00000000000000000000000000000000000000f0"
`,
		"negative weight": `
[[Pool]]
ID = "alpha"
Coordinator = "0x00000000000000000000000000000000000000c0"
Assessor = "0x00000000000000000000000000000000000000a5"
Reserve = "0x00000000000000000000000000000000000000e5"
NAVFeed = "0x00000000000000000000000000000000000000f0"
[Pool.Weights]
JuniorRedeem = "-1"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPools(writeFile(t, contents))
			require.Error(t, err)
		})
	}
}

func TestLoadPoolsRejectsDuplicateIDs(t *testing.T) {
	reg, err := LoadPools(writeFile(t, samplePools))
	require.NoError(t, err)
	reg.Pools[1].ID = "alpha"
	require.ErrorContains(t, ValidateRegistry(reg), "duplicate")
}

func TestSavePoolsRoundTrip(t *testing.T) {
	reg, err := LoadPools(writeFile(t, samplePools))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "pools.toml")
	require.NoError(t, SavePools(path, reg))

	reloaded, err := LoadPools(path)
	require.NoError(t, err)
	require.Equal(t, reg.Pools, reloaded.Pools)
}
