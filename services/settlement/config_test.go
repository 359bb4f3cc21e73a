package settlement

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trancheclear/native/tranche"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
rpc_endpoint: http://localhost:8545
signer_key: "  4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318  "
admin:
  bearer_token: secret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", cfg.SignerKey)
	require.Equal(t, 15*time.Second, cfg.PollInterval.Duration)
	require.Equal(t, uint64(2), cfg.Confirmations)
	require.Equal(t, 3, cfg.MaxResolves)
	require.Equal(t, DefaultRetryPolicy(), cfg.Retry.Policy())
	require.Equal(t, tranche.DefaultCurrencyScale, cfg.CurrencyScale())
	require.Equal(t, tranche.DefaultRatioScale, cfg.RatioScale())
}

func TestLoadConfigReadsSecretsFromEnvAndFile(t *testing.T) {
	t.Setenv("EPOCHD_TEST_SIGNER", "abcdef")
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("from-file\n"), 0o600))
	path := writeConfig(t, `
rpc_endpoint: http://localhost:8545
signer_key_env: EPOCHD_TEST_SIGNER
poll_interval: 2s
retry:
  attempts: 2
  base_delay: 100ms
  max_delay: 1s
weights:
  senior_redeem: "5"
admin:
  bearer_token_file: `+tokenPath+`
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "abcdef", cfg.SignerKey)
	require.Equal(t, "from-file", cfg.Admin.BearerToken)
	require.Equal(t, 2*time.Second, cfg.PollInterval.Duration)
	require.Equal(t, 2, cfg.Retry.Attempts)
	require.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay.Duration)

	weights, err := cfg.Weights.Resolve(tranche.DefaultWeights())
	require.NoError(t, err)
	require.Equal(t, "5", weights.SeniorRedeem.String())
	require.True(t, weights.JuniorRedeem.Equal(tranche.DefaultWeights().JuniorRedeem))
}

func TestLoadConfigRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"missing rpc": `
signer_key: abc
admin:
  bearer_token: secret
`,
		"missing signer": `
rpc_endpoint: http://localhost:8545
admin:
  bearer_token: secret
`,
		"missing token": `
rpc_endpoint: http://localhost:8545
signer_key: abc
`,
		"unknown field": `
rpc_endpoint: http://localhost:8545
signer_key: abc
dry_run: true
admin:
  bearer_token: secret
`,
		"bad duration": `
rpc_endpoint: http://localhost:8545
signer_key: abc
poll_interval: soon
admin:
  bearer_token: secret
`,
		"inverted backoff": `
rpc_endpoint: http://localhost:8545
signer_key: abc
retry:
  base_delay: 5s
  max_delay: 1s
admin:
  bearer_token: secret
`,
		"negative weight": `
rpc_endpoint: http://localhost:8545
signer_key: abc
weights:
  junior_supply: "-1"
admin:
  bearer_token: secret
`,
		"empty signer env": `
rpc_endpoint: http://localhost:8545
signer_key_env: EPOCHD_TEST_UNSET_SIGNER
admin:
  bearer_token: secret
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
