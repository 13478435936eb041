package pipeline

import (
	"context"
	"errors"

	"github.com/compose-network/saya/x/prover"
	"github.com/compose-network/saya/x/retry"
	"github.com/compose-network/saya/x/store"
)

// submitTick submits the next block for step-1 proving unless too many jobs are
// already waiting on the prover. Any failure leaves the cursor untouched so the
// same block is tried again next tick.
func (o *Orchestrator) submitTick(ctx context.Context) {
	inFlight, err := o.store.CountBlocksByStatus(ctx, store.StatusPieSubmitted)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to count in-flight jobs")
		return
	}
	if inFlight >= o.cfg.MaxInFlight {
		o.metrics.BackpressureSkips.Inc()
		o.log.Debug().
			Int("in_flight", inFlight).
			Int("max_in_flight", o.cfg.MaxInFlight).
			Msg("Backpressure, skipping submission")
		return
	}

	block := o.Cursor().LastSentForProveBlock + 1
	log := o.log.With().Str("task", "submit").Uint64("block", block).Logger()

	// A failed run is retried on the next tick, not within this one.
	pie, err := o.traces.Generate(ctx, block)
	if err != nil {
		o.itemError("submit", err)
		log.Warn().Err(err).Msg("Trace generation failed")
		return
	}

	queryID, err := retry.Do(ctx, o.cfg.Retry, log.With().Str("op", "submit_proof_generation").Logger(),
		func(ctx context.Context) (prover.QueryID, error) {
			return transient(o.prover.SubmitProofGeneration(ctx, pie))
		})
	if err != nil {
		o.itemError("submit", err)
		log.Warn().Err(err).Msg("Proof generation submission failed")
		return
	}

	if err := o.store.InsertBlock(ctx, block, queryID, store.StatusPieSubmitted); err != nil {
		o.itemError("submit", err)
		if errors.Is(err, store.ErrDuplicateKey) {
			log.Warn().Str("query_id", queryID).Msg("Block already tracked, resyncing cursor")
			o.resyncSent(ctx)
			return
		}
		log.Error().Err(err).Str("query_id", queryID).Msg("Failed to record submitted block")
		return
	}

	o.setSent(block)
	o.metrics.JobsSubmitted.Inc()
	o.metrics.Transitions.WithLabelValues(store.StatusPieSubmitted.String()).Inc()
	log.Info().Str("query_id", queryID).Msg("Block submitted for proving")
}

// resyncSent moves the submission cursor past every id already in the store.
func (o *Orchestrator) resyncSent(ctx context.Context) {
	jobs, err := o.store.ListBlocks(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to list jobs for cursor resync")
		return
	}
	sent := o.Cursor().LastSentForProveBlock
	for _, job := range jobs {
		if job.ID > sent {
			sent = job.ID
		}
	}
	o.setSent(sent)
}

// transient stops retrying on prover errors that a retry will not fix.
func transient[T any](v T, err error) (T, error) {
	if err != nil && !prover.IsTransient(err) {
		return v, retry.Permanent(err)
	}
	return v, err
}

func (o *Orchestrator) itemError(task string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	o.metrics.ItemErrors.WithLabelValues(task).Inc()
}
