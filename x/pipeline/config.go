package pipeline

import (
	"errors"
	"time"

	"github.com/compose-network/saya/x/retry"
)

// Config tunes the three pipeline tasks.
type Config struct {
	// SubmitInterval paces stage 1 (trace generation and proof submission).
	SubmitInterval time.Duration `mapstructure:"submit_interval" yaml:"submit_interval"`
	// StatusInterval paces stage 2 (status polling and proof collection).
	StatusInterval time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
	// SettleInterval paces settlement.
	SettleInterval time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`

	// MaxInFlight bounds the number of jobs awaiting their step-1 proof.
	MaxInFlight int `mapstructure:"max_in_flight" yaml:"max_in_flight"`
	// MaxItemFailures is the number of consecutive failed ticks after which a job is marked failed.
	MaxItemFailures int `mapstructure:"max_item_failures" yaml:"max_item_failures"`
	// SettlementTimeout is how long a sent update_state may stay unconfirmed before it is re-sent.
	SettlementTimeout time.Duration `mapstructure:"settlement_timeout" yaml:"settlement_timeout"`
	// PruneSettledProofs deletes stored proofs once their block is confirmed on chain.
	PruneSettledProofs bool `mapstructure:"prune_settled_proofs" yaml:"prune_settled_proofs"`

	Retry retry.Config `mapstructure:"retry" yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		SubmitInterval:    10 * time.Second,
		StatusInterval:    15 * time.Second,
		SettleInterval:    10 * time.Second,
		MaxInFlight:       1,
		MaxItemFailures:   5,
		SettlementTimeout: 10 * time.Minute,
		Retry:             retry.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.SubmitInterval <= 0 || c.StatusInterval <= 0 || c.SettleInterval <= 0 {
		return errors.New("pipeline intervals must be positive")
	}
	if c.MaxInFlight < 1 {
		return errors.New("pipeline max_in_flight must be at least 1")
	}
	if c.MaxItemFailures < 1 {
		return errors.New("pipeline max_item_failures must be at least 1")
	}
	if c.SettlementTimeout <= 0 {
		return errors.New("pipeline settlement_timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry max_attempts must be at least 1")
	}
	return nil
}
