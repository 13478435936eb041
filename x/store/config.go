package store

import (
	"errors"
	"time"
)

// Config holds job store settings.
type Config struct {
	// Path of the SQLite database file. Created on first open.
	Path string `mapstructure:"path" yaml:"path"`
	// BusyTimeout bounds how long a write waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Path:        "blocks.db",
		BusyTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("store path is required")
	}
	if c.BusyTimeout < 0 {
		return errors.New("store busy_timeout must not be negative")
	}
	return nil
}
