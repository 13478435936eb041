package atlantic

import (
	"errors"
	"time"
)

// Config configures the Atlantic prover client.
type Config struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// ProofBaseURL serves finished proofs as {ProofBaseURL}/query_{id}/proof.json.
	ProofBaseURL string        `mapstructure:"proof_base_url" yaml:"proof_base_url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	Layout       string        `mapstructure:"layout" yaml:"layout"`
	Prover       string        `mapstructure:"prover" yaml:"prover"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// LayoutBridgeProgram is the path of the compiled layout bridge program.
	LayoutBridgeProgram string `mapstructure:"layout_bridge_program" yaml:"layout_bridge_program"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://atlantic.api.herodotus.cloud",
		ProofBaseURL:        "https://atlantic.api.herodotus.cloud/sharp_queries",
		Layout:              "dynamic",
		Prover:              "starkware_sharp",
		Timeout:             2 * time.Minute,
		LayoutBridgeProgram: "programs/layout_bridge.json",
	}
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("prover base_url is required")
	}
	if c.ProofBaseURL == "" {
		return errors.New("prover proof_base_url is required")
	}
	if c.APIKey == "" {
		return errors.New("prover api_key is required")
	}
	if c.LayoutBridgeProgram == "" {
		return errors.New("prover layout_bridge_program is required")
	}
	return nil
}
