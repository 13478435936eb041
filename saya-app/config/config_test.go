package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testYAML = `
log:
  level: debug
prover:
  api_key: secret-key
  layout_bridge_program: bridge.json
trace:
  rpc_url: http://node:9545
settlement:
  contract_address: "0x1234"
  account_address: "0x5678"
  private_key_hex: "0x1"
pipeline:
  max_in_flight: 3
  retry:
    max_attempts: 7
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "secret-key", cfg.Prover.APIKey)
	require.Equal(t, "dynamic", cfg.Prover.Layout)
	require.Equal(t, 3, cfg.Pipeline.MaxInFlight)
	require.Equal(t, 7, cfg.Pipeline.Retry.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.Pipeline.Retry.Delay)
	require.Equal(t, 15*time.Second, cfg.Pipeline.StatusInterval)
	require.Equal(t, "blocks.db", cfg.Store.Path)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Equal(t, "{block}", cfg.Trace.Args[3])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_SUBMIT_INTERVAL", "3s")
	t.Setenv("STORE_PATH", "/var/lib/saya/blocks.db")

	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Pipeline.SubmitInterval)
	require.Equal(t, "/var/lib/saya/blocks.db", cfg.Store.Path)
}

func TestLoad_SecretAliases(t *testing.T) {
	t.Setenv("ATLANTIC_API_KEY", "from-env")
	t.Setenv("SETTLEMENT_PRIVATE_KEY_HEX", "0x2")

	body := `
prover:
  layout_bridge_program: bridge.json
settlement:
  contract_address: "0x1234"
  account_address: "0x5678"
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Prover.APIKey)
	require.Equal(t, "0x2", cfg.Settlement.PrivateKeyHex)

	red := cfg.Redacted()
	require.Equal(t, "***", red.Prover.APIKey)
	require.Equal(t, "***", red.Settlement.PrivateKeyHex)
	require.Equal(t, "from-env", cfg.Prover.APIKey)
}

func TestLoad_ValidationErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "prover:\n  api_key: k\n"))
	require.ErrorContains(t, err, "settlement")

	_, err = Load(writeConfig(t, testYAML+"\nmetrics:\n  path: metrics\n"))
	require.ErrorContains(t, err, "metrics.path")
}
