package settlement

import (
	"errors"
	"time"
)

// Config holds Starknet settlement configuration.
type Config struct {
	// JSON-RPC endpoint of the settlement chain node.
	RPCEndpoint string `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint"`

	// Address (hex felt) of the Piltover core contract.
	ContractAddress string `mapstructure:"contract_address" yaml:"contract_address"`

	// Account used to submit update_state.
	AccountAddress string `mapstructure:"account_address" yaml:"account_address"`
	PrivateKeyHex  string `mapstructure:"private_key_hex" yaml:"private_key_hex" env:"SETTLEMENT_PRIVATE_KEY_HEX"` //nolint:lll // ok

	// Optional chain id (hex felt). Fetched from the node when empty.
	ChainID string `mapstructure:"chain_id" yaml:"chain_id"`

	// MaxFee (hex felt, in wei) attached to INVOKE v1 transactions.
	MaxFee string `mapstructure:"max_fee" yaml:"max_fee"`

	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

func DefaultConfig() Config {
	return Config{
		RPCEndpoint: "http://localhost:5050",
		MaxFee:      "0x16345785d8a0000", // 0.1 ETH
		CallTimeout: 30 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.New("settlement rpc_endpoint is required")
	}
	if c.ContractAddress == "" {
		return errors.New("settlement contract_address is required")
	}
	if c.AccountAddress == "" {
		return errors.New("settlement account_address is required")
	}
	if c.PrivateKeyHex == "" {
		return errors.New("settlement private_key_hex is required")
	}
	if _, err := ParseFelt(c.ContractAddress); err != nil {
		return errors.New("settlement contract_address is not a felt")
	}
	if _, err := ParseFelt(c.AccountAddress); err != nil {
		return errors.New("settlement account_address is not a felt")
	}
	if c.MaxFee != "" {
		if _, err := ParseFelt(c.MaxFee); err != nil {
			return errors.New("settlement max_fee is not a felt")
		}
	}
	return nil
}
