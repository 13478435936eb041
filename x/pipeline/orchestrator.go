// Package pipeline drives blocks through proving and settlement.
//
// Three tasks run concurrently and communicate only through the job store:
// stage 1 submits the next block for proving, stage 2 advances submitted jobs
// as the prover completes them, and settlement submits completed blocks to the
// core contract in strict block order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/saya/x/prover"
	"github.com/compose-network/saya/x/retry"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
	"github.com/compose-network/saya/x/trace"
)

// Settler is the settlement contract as seen by the pipeline.
type Settler interface {
	GetState(ctx context.Context) (settlement.State, error)
	UpdateState(ctx context.Context, pieProof, bridgeProof string) (*settlement.UpdateResult, error)
}

// Cursor tracks pipeline progress.
type Cursor struct {
	// LastSettledBlock is the highest block the contract has accepted (or that was just sent).
	LastSettledBlock uint64 `json:"last_settled_block"`
	// LastSentForProveBlock is the highest block submitted for proving.
	LastSentForProveBlock uint64 `json:"last_sent_for_prove_block"`
}

// Orchestrator owns the pipeline state and runs its tasks.
type Orchestrator struct {
	cfg     Config
	store   store.Store
	prover  prover.Client
	traces  trace.Generator
	settler Settler
	parser  settlement.ProofParser
	metrics *Metrics
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	cursor    Cursor
	recovered bool

	// failures is owned by the stage-2 task.
	failures map[uint64]int
	// pending is owned by the settlement task.
	pending *pendingSettlement

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type pendingSettlement struct {
	block  uint64
	txHash string
	sentAt time.Time
}

func New(
	cfg Config,
	st store.Store,
	pc prover.Client,
	gen trace.Generator,
	settler Settler,
	parser settlement.ProofParser,
	log zerolog.Logger,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil || pc == nil || gen == nil || settler == nil {
		return nil, errors.New("store, prover, trace generator and settler are required")
	}
	if parser == nil {
		parser = settlement.NewStarkProofParser()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		prover:   pc,
		traces:   gen,
		settler:  settler,
		parser:   parser,
		metrics:  NewMetrics(),
		log:      log.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
		failures: make(map[uint64]int),
	}, nil
}

// Cursor returns a snapshot of pipeline progress.
func (o *Orchestrator) Cursor() Cursor {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cursor
}

func (o *Orchestrator) setSettled(block uint64) {
	o.mu.Lock()
	o.cursor.LastSettledBlock = block
	o.mu.Unlock()
	o.metrics.LastSettledBlock.Set(float64(block))
}

func (o *Orchestrator) setSent(block uint64) {
	o.mu.Lock()
	o.cursor.LastSentForProveBlock = block
	o.mu.Unlock()
	o.metrics.LastSentBlock.Set(float64(block))
}

// Recover derives the cursor from chain and store. A failure to read the chain
// state is fatal for startup.
func (o *Orchestrator) Recover(ctx context.Context) error {
	state, err := retry.Do(ctx, o.cfg.Retry, o.log.With().Str("op", "get_state").Logger(),
		func(ctx context.Context) (settlement.State, error) {
			return o.settler.GetState(ctx)
		})
	if err != nil {
		return fmt.Errorf("read settled state: %w", err)
	}

	jobs, err := o.store.ListBlocks(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	sent := state.BlockNumber
	failed := 0
	for _, job := range jobs {
		// Terminal jobs count too: their ids are taken and must not be resubmitted.
		if job.ID > sent {
			sent = job.ID
		}
		if job.Status == store.StatusFailed {
			failed++
		}
	}

	o.setSettled(state.BlockNumber)
	o.setSent(sent)
	o.mu.Lock()
	o.recovered = true
	o.mu.Unlock()

	o.log.Info().
		Uint64("last_settled_block", state.BlockNumber).
		Uint64("last_sent_for_prove_block", sent).
		Int("jobs", len(jobs)).
		Int("failed_jobs", failed).
		Msg("Pipeline state recovered")
	return nil
}

// Run recovers (if not done yet) and runs all tasks until ctx is cancelled or
// a task fails. Cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.RLock()
	recovered := o.recovered
	o.mu.RUnlock()
	if !recovered {
		if err := o.Recover(ctx); err != nil {
			return err
		}
	}

	o.log.Info().
		Dur("submit_interval", o.cfg.SubmitInterval).
		Dur("status_interval", o.cfg.StatusInterval).
		Dur("settle_interval", o.cfg.SettleInterval).
		Int("max_in_flight", o.cfg.MaxInFlight).
		Msg("Pipeline started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.loop(gctx, "submit", o.cfg.SubmitInterval, o.submitTick) })
	g.Go(func() error { return o.loop(gctx, "advance", o.cfg.StatusInterval, o.advanceTick) })
	g.Go(func() error { return o.loop(gctx, "settle", o.cfg.SettleInterval, o.settleTick) })

	err := g.Wait()
	o.log.Info().Msg("Pipeline stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start runs the pipeline in the background. It returns once recovery has completed.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel != nil {
		return errors.New("pipeline already started")
	}
	if err := o.Recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		if err := o.Run(runCtx); err != nil {
			o.log.Error().Err(err).Msg("Pipeline exited with error")
		}
	}()
	return nil
}

// Stop cancels the tasks and waits for them to return or ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.runMu.Lock()
	cancel, done := o.cancel, o.done
	o.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop runs tick immediately and then every interval until ctx is done.
func (o *Orchestrator) loop(ctx context.Context, task string, every time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		start := time.Now()
		tick(ctx)
		o.metrics.TickDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
