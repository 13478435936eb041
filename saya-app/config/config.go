package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/compose-network/saya/log"
	apisrv "github.com/compose-network/saya/server/api"
	"github.com/compose-network/saya/x/pipeline"
	"github.com/compose-network/saya/x/prover/atlantic"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
	"github.com/compose-network/saya/x/trace"
)

// Config holds the complete application configuration
type Config struct {
	Log        log.Config        `mapstructure:"log"        yaml:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"    yaml:"metrics"`
	API        apisrv.Config     `mapstructure:"api"        yaml:"api"`
	Store      store.Config      `mapstructure:"store"      yaml:"store"`
	Prover     atlantic.Config   `mapstructure:"prover"     yaml:"prover"`
	Trace      trace.Config      `mapstructure:"trace"      yaml:"trace"`
	Settlement settlement.Config `mapstructure:"settlement" yaml:"settlement"`
	Pipeline   pipeline.Config   `mapstructure:"pipeline"   yaml:"pipeline"`
}

// MetricsConfig holds metrics configuration. Metrics are served on the API server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env aliases for secrets
	if strings.TrimSpace(cfg.Prover.APIKey) == "" {
		if v := strings.TrimSpace(os.Getenv("ATLANTIC_API_KEY")); v != "" {
			cfg.Prover.APIKey = v
		}
	}
	if strings.TrimSpace(cfg.Settlement.PrivateKeyHex) == "" {
		if v := strings.TrimSpace(os.Getenv("SETTLEMENT_PRIVATE_KEY_HEX")); v != "" {
			cfg.Settlement.PrivateKeyHex = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.enable_cors", d.API.EnableCORS)
	v.SetDefault("api.read_header_timeout", d.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", d.API.IdleTimeout)
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.busy_timeout", d.Store.BusyTimeout)

	v.SetDefault("prover.base_url", d.Prover.BaseURL)
	v.SetDefault("prover.proof_base_url", d.Prover.ProofBaseURL)
	v.SetDefault("prover.api_key", "")
	v.SetDefault("prover.layout", d.Prover.Layout)
	v.SetDefault("prover.prover", d.Prover.Prover)
	v.SetDefault("prover.timeout", d.Prover.Timeout)
	v.SetDefault("prover.layout_bridge_program", d.Prover.LayoutBridgeProgram)

	v.SetDefault("trace.command", d.Trace.Command)
	v.SetDefault("trace.args", d.Trace.Args)
	v.SetDefault("trace.rpc_url", "")
	v.SetDefault("trace.layout", d.Trace.Layout)
	v.SetDefault("trace.work_dir", "")
	v.SetDefault("trace.timeout", d.Trace.Timeout)

	v.SetDefault("settlement.rpc_endpoint", d.Settlement.RPCEndpoint)
	v.SetDefault("settlement.contract_address", "")
	v.SetDefault("settlement.account_address", "")
	v.SetDefault("settlement.private_key_hex", "")
	v.SetDefault("settlement.chain_id", "")
	v.SetDefault("settlement.max_fee", d.Settlement.MaxFee)
	v.SetDefault("settlement.call_timeout", d.Settlement.CallTimeout)

	v.SetDefault("pipeline.submit_interval", d.Pipeline.SubmitInterval)
	v.SetDefault("pipeline.status_interval", d.Pipeline.StatusInterval)
	v.SetDefault("pipeline.settle_interval", d.Pipeline.SettleInterval)
	v.SetDefault("pipeline.max_in_flight", d.Pipeline.MaxInFlight)
	v.SetDefault("pipeline.max_item_failures", d.Pipeline.MaxItemFailures)
	v.SetDefault("pipeline.settlement_timeout", d.Pipeline.SettlementTimeout)
	v.SetDefault("pipeline.prune_settled_proofs", d.Pipeline.PruneSettledProofs)
	v.SetDefault("pipeline.retry.max_attempts", d.Pipeline.Retry.MaxAttempts)
	v.SetDefault("pipeline.retry.delay", d.Pipeline.Retry.Delay)
	v.SetDefault("pipeline.retry.multiplier", d.Pipeline.Retry.Multiplier)
	v.SetDefault("pipeline.retry.max_delay", d.Pipeline.Retry.MaxDelay)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Prover.Validate(); err != nil {
		return err
	}
	if err := c.Trace.Validate(); err != nil {
		return err
	}
	if err := c.Settlement.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if !c.API.Enabled {
		return fmt.Errorf("metrics.enabled requires api.enabled")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	if c.Prover.APIKey != "" {
		c.Prover.APIKey = "***"
	}
	if c.Settlement.PrivateKeyHex != "" {
		c.Settlement.PrivateKeyHex = "***"
	}
	return c
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Log: log.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		API:        apisrv.DefaultConfig(),
		Store:      store.DefaultConfig(),
		Prover:     atlantic.DefaultConfig(),
		Trace:      trace.DefaultConfig(),
		Settlement: settlement.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
	}
}
