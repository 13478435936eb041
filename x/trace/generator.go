// Package trace builds the execution trace (Cairo PIE) submitted for a block.
package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyTrace is returned when the runner exits cleanly but produces no artifact.
var ErrEmptyTrace = errors.New("empty trace artifact")

// Generator produces the proving input for one block.
type Generator interface {
	Generate(ctx context.Context, block uint64) ([]byte, error)
}

// Config configures CommandGenerator.
type Config struct {
	// Command is the executable that builds the trace, e.g. a snos runner.
	Command string `mapstructure:"command" yaml:"command"`
	// Args are passed to Command after placeholder substitution:
	// {block}, {rpc_url}, {layout}, {output}.
	Args    []string      `mapstructure:"args" yaml:"args"`
	RPCURL  string        `mapstructure:"rpc_url" yaml:"rpc_url"`
	Layout  string        `mapstructure:"layout" yaml:"layout"`
	WorkDir string        `mapstructure:"work_dir" yaml:"work_dir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Command: "snos",
		Args:    []string{"--rpc-provider", "{rpc_url}", "--block-number", "{block}", "--layout", "{layout}", "--output", "{output}"},
		Layout:  "all_cairo",
		Timeout: 30 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("trace command is required")
	}
	if c.Timeout < 0 {
		return errors.New("trace timeout must not be negative")
	}
	return nil
}

// CommandGenerator runs an external program that writes the trace to a file.
type CommandGenerator struct {
	cfg Config
	log zerolog.Logger
}

var _ Generator = (*CommandGenerator)(nil)

func NewCommandGenerator(cfg Config, log zerolog.Logger) (*CommandGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CommandGenerator{
		cfg: cfg,
		log: log.With().Str("component", "trace-generator").Logger(),
	}, nil
}

func (g *CommandGenerator) Generate(ctx context.Context, block uint64) ([]byte, error) {
	out, err := os.CreateTemp(g.cfg.WorkDir, fmt.Sprintf("pie-%d-*.zip", block))
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	output := out.Name()
	_ = out.Close()
	defer os.Remove(output)

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	args := g.expand(block, output)
	cmd := exec.CommandContext(ctx, g.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	g.log.Info().
		Uint64("block", block).
		Str("command", g.cfg.Command).
		Str("output", filepath.Base(output)).
		Msg("Generating trace")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("generate trace for block %d: %w", block, ctxErr)
		}
		return nil, fmt.Errorf("generate trace for block %d: %w: %s", block, err, tail(stderr.String(), 512))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("read trace for block %d: %w", block, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("block %d: %w", block, ErrEmptyTrace)
	}

	g.log.Info().
		Uint64("block", block).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("Trace generated")
	return data, nil
}

func (g *CommandGenerator) expand(block uint64, output string) []string {
	r := strings.NewReplacer(
		"{block}", strconv.FormatUint(block, 10),
		"{rpc_url}", g.cfg.RPCURL,
		"{layout}", g.cfg.Layout,
		"{output}", output,
	)
	args := make([]string, len(g.cfg.Args))
	for i, a := range g.cfg.Args {
		args[i] = r.Replace(a)
	}
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
