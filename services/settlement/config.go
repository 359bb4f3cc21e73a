package settlement

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trancheclear/config"
	"trancheclear/native/tranche"
	"trancheclear/observability/logging"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for epochd.
type Config struct {
	ListenAddress       string           `yaml:"listen"`
	PoolsPath           string           `yaml:"pools"`
	RPCEndpoint         string           `yaml:"rpc_endpoint"`
	ChainID             int64            `yaml:"chain_id"`
	SignerKey           string           `yaml:"signer_key"`
	SignerKeyFile       string           `yaml:"signer_key_file"`
	SignerKeyEnv        string           `yaml:"signer_key_env"`
	CurrencyDecimals    int32            `yaml:"currency_decimals"`
	RatioDecimals       int32            `yaml:"ratio_decimals"`
	PollInterval        Duration         `yaml:"poll_interval"`
	Confirmations       uint64           `yaml:"confirmations"`
	ConfirmationTimeout Duration         `yaml:"confirmation_timeout"`
	Retry               RetryConfig      `yaml:"retry"`
	MaxResolves         int              `yaml:"max_resolves"`
	DisableReplacement  bool             `yaml:"disable_replacement"`
	JournalDSN          string           `yaml:"journal_dsn"`
	CheckpointPath      string           `yaml:"checkpoint_path"`
	Log                 logging.FileSink `yaml:"log"`
	Admin               AdminConfig      `yaml:"admin"`
	Weights             config.Weights   `yaml:"weights"`
}

// RetryConfig configures the ledger retry policy.
type RetryConfig struct {
	Attempts      int      `yaml:"attempts"`
	BaseDelay     Duration `yaml:"base_delay"`
	MaxDelay      Duration `yaml:"max_delay"`
	CallTimeout   Duration `yaml:"call_timeout"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	Burst         int      `yaml:"burst"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
	BearerTokenEnv  string `yaml:"bearer_token_env"`
}

// Policy converts the retry configuration.
func (r RetryConfig) Policy() RetryPolicy {
	return RetryPolicy{
		Attempts:      r.Attempts,
		BaseDelay:     r.BaseDelay.Duration,
		MaxDelay:      r.MaxDelay.Duration,
		CallTimeout:   r.CallTimeout.Duration,
		RatePerSecond: r.RatePerSecond,
		Burst:         r.Burst,
	}
}

// CurrencyScale returns the fixed-point scale of token amounts.
func (c Config) CurrencyScale() tranche.Scale { return tranche.Scale{Decimals: c.CurrencyDecimals} }

// RatioScale returns the fixed-point scale of ratios and rates.
func (c Config) RatioScale() tranche.Scale { return tranche.Scale{Decimals: c.RatioDecimals} }

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.normaliseSigner(); err != nil {
		return cfg, fmt.Errorf("signer: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.PoolsPath == "" {
		cfg.PoolsPath = "services/settlement/pools.toml"
	}
	if cfg.CurrencyDecimals == 0 {
		cfg.CurrencyDecimals = tranche.DefaultCurrencyScale.Decimals
	}
	if cfg.RatioDecimals == 0 {
		cfg.RatioDecimals = tranche.DefaultRatioScale.Decimals
	}
	if cfg.PollInterval.Duration == 0 {
		cfg.PollInterval.Duration = 15 * time.Second
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 2
	}
	if cfg.ConfirmationTimeout.Duration == 0 {
		cfg.ConfirmationTimeout.Duration = 5 * time.Minute
	}
	defaults := DefaultRetryPolicy()
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = defaults.Attempts
	}
	if cfg.Retry.BaseDelay.Duration == 0 {
		cfg.Retry.BaseDelay.Duration = defaults.BaseDelay
	}
	if cfg.Retry.MaxDelay.Duration == 0 {
		cfg.Retry.MaxDelay.Duration = defaults.MaxDelay
	}
	if cfg.Retry.CallTimeout.Duration == 0 {
		cfg.Retry.CallTimeout.Duration = defaults.CallTimeout
	}
	if cfg.Retry.RatePerSecond == 0 {
		cfg.Retry.RatePerSecond = defaults.RatePerSecond
	}
	if cfg.Retry.Burst == 0 {
		cfg.Retry.Burst = defaults.Burst
	}
	if cfg.MaxResolves == 0 {
		cfg.MaxResolves = 3
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.RPCEndpoint) == "" {
		return fmt.Errorf("rpc_endpoint must be configured")
	}
	if cfg.ChainID < 0 {
		return fmt.Errorf("chain_id must not be negative")
	}
	if strings.TrimSpace(cfg.SignerKey) == "" {
		return fmt.Errorf("signer key must be configured")
	}
	if err := cfg.CurrencyScale().Validate(); err != nil {
		return fmt.Errorf("currency_decimals: %w", err)
	}
	if err := cfg.RatioScale().Validate(); err != nil {
		return fmt.Errorf("ratio_decimals: %w", err)
	}
	if cfg.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if cfg.Retry.MaxDelay.Duration < cfg.Retry.BaseDelay.Duration {
		return fmt.Errorf("retry.max_delay must not be below retry.base_delay")
	}
	if cfg.MaxResolves < 0 {
		return fmt.Errorf("max_resolves must not be negative")
	}
	if _, err := cfg.Weights.Resolve(tranche.DefaultWeights()); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer token must be configured")
	}
	return nil
}

func (c *Config) normaliseSigner() error {
	c.SignerKey = strings.TrimSpace(c.SignerKey)
	c.SignerKeyEnv = strings.TrimSpace(c.SignerKeyEnv)
	c.SignerKeyFile = strings.TrimSpace(c.SignerKeyFile)
	if c.SignerKey != "" {
		return nil
	}
	switch {
	case c.SignerKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(c.SignerKeyEnv))
		if value == "" {
			return fmt.Errorf("signer_key_env %s is empty", c.SignerKeyEnv)
		}
		c.SignerKey = value
	case c.SignerKeyFile != "":
		contents, err := os.ReadFile(c.SignerKeyFile)
		if err != nil {
			return fmt.Errorf("read signer_key_file: %w", err)
		}
		c.SignerKey = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("signer_key is required")
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	token := strings.TrimSpace(a.BearerToken)
	if env := strings.TrimSpace(a.BearerTokenEnv); env != "" && token == "" {
		token = strings.TrimSpace(os.Getenv(env))
		if token == "" {
			return fmt.Errorf("bearer_token_env %s is empty", env)
		}
	}
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
