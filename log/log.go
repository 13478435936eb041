// Package log builds the process-wide zerolog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

// Config selects level, format and destination.
type Config struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
	Output string `mapstructure:"output" yaml:"output"`
	File   string `mapstructure:"file"   yaml:"file"`
	// Rotation settings for OutputFile.
	MaxSizeMB  int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days" yaml:"max_age_days"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Output:     OutputStdout,
		File:       "saya.log",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

func (c Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Output) {
	case "", OutputStdout, OutputStderr:
	case OutputFile:
		if strings.TrimSpace(c.File) == "" {
			return fmt.Errorf("log.file is required when log.output is %q", OutputFile)
		}
	default:
		return fmt.Errorf("unknown log.output %q", c.Output)
	}
	return nil
}

// Logger carries the root logger plus the closer of its sink, if any.
type Logger struct {
	zerolog.Logger
	closer io.Closer
}

// New returns a stdout logger at level. Unknown levels fall back to info.
func New(level string, pretty bool) *Logger {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Pretty = pretty
	return NewWithConfig(cfg)
}

// NewWithConfig builds a logger writing to the configured destination.
func NewWithConfig(cfg Config) *Logger {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		out    io.Writer = os.Stdout
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case OutputStderr:
		out = os.Stderr
	case OutputFile:
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out, closer = lj, lj
	}

	if cfg.Pretty && closer == nil {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "saya").Logger()
	if err != nil {
		l.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
	}
	return &Logger{Logger: l, closer: closer}
}

// Close flushes and closes a file sink.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func parseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
