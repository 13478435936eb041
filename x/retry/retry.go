// Package retry wraps fallible external calls with a bounded backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config bounds a retried operation.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// Delay is the wait before the second attempt. Zero or negative selects the default.
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
	// Multiplier > 1 grows the delay exponentially; otherwise the delay is constant.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`
	// MaxDelay caps exponential growth. Zero means uncapped.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
		Multiplier:  1,
		MaxDelay:    30 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = def.Delay
	}
	return c
}

func (c Config) backOff() backoff.BackOff {
	if c.Multiplier <= 1 {
		return backoff.NewConstantBackOff(c.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Delay
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	} else {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.Reset()
	return b
}

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, ctx is done,
// or cfg.MaxAttempts attempts have been made. The last error is returned.
func Do[T any](ctx context.Context, cfg Config, log zerolog.Logger, op func(context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	attempt := 0
	b := backoff.WithMaxRetries(backoff.WithContext(cfg.backOff(), ctx), uint64(cfg.MaxAttempts-1))
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		log.Debug().Int("attempt", attempt).Msg("Attempting operation")
		return op(ctx)
	}, b, func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("retry_in", next).
			Msg("Operation failed, retrying")
	})
}
