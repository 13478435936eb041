package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/compose-network/saya/x/prover"
	"github.com/compose-network/saya/x/retry"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
)

// errProverFailed is returned when the prover reports a failed sub-job.
var errProverFailed = errors.New("prover reported a failed job")

var activeStatuses = []store.Status{
	store.StatusPieSubmitted,
	store.StatusPieProofGenerated,
	store.StatusBridgeProofSubmitted,
}

// advanceTick moves every active job at most one step. Jobs are listed up front
// so a job advanced early in the tick is not advanced again by the same tick.
func (o *Orchestrator) advanceTick(ctx context.Context) {
	var jobs []store.BlockJob
	for _, st := range activeStatuses {
		batch, err := o.store.ListBlocksByStatus(ctx, st)
		if err != nil {
			o.log.Warn().Err(err).Str("status", st.String()).Msg("Failed to list jobs")
			return
		}
		jobs = append(jobs, batch...)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	o.metrics.JobsPerTick.Observe(float64(len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		log := o.log.With().
			Str("task", "advance").
			Uint64("block", job.ID).
			Str("status", job.Status.String()).
			Logger()
		o.recordOutcome(ctx, job, log, o.advance(ctx, job, log))
	}
}

func (o *Orchestrator) advance(ctx context.Context, job store.BlockJob, log zerolog.Logger) error {
	switch job.Status {
	case store.StatusPieSubmitted:
		return o.advancePieSubmitted(ctx, job, log)
	case store.StatusPieProofGenerated:
		return o.advancePieProofGenerated(ctx, job, log)
	case store.StatusBridgeProofSubmitted:
		return o.validate(ctx, job, log)
	default:
		return nil
	}
}

func (o *Orchestrator) advancePieSubmitted(ctx context.Context, job store.BlockJob, log zerolog.Logger) error {
	done, err := o.queryDone(ctx, job.QueryIDStep1, log)
	if err != nil || !done {
		return err
	}

	proof, err := o.fetchProof(ctx, job.QueryIDStep1, log)
	if err != nil {
		return err
	}
	if err := o.store.InsertProof(ctx, job.ID, store.StagePie, proof); err != nil {
		return fmt.Errorf("persist pie proof: %w", err)
	}

	if job.QueryIDStep2 == "" {
		if _, err := o.submitBridge(ctx, job.ID, proof, log); err != nil {
			return err
		}
	}

	return o.transition(ctx, job.ID, store.StatusPieProofGenerated, log)
}

func (o *Orchestrator) advancePieProofGenerated(ctx context.Context, job store.BlockJob, log zerolog.Logger) error {
	if job.QueryIDStep2 == "" {
		// Step-2 submission was lost; resubmit from the stored pie proof.
		pie, err := o.store.GetProof(ctx, job.ID, store.StagePie)
		if err != nil {
			return fmt.Errorf("load pie proof: %w", err)
		}
		_, err = o.submitBridge(ctx, job.ID, pie, log)
		return err
	}

	done, err := o.queryDone(ctx, job.QueryIDStep2, log)
	if err != nil || !done {
		return err
	}

	proof, err := o.fetchProof(ctx, job.QueryIDStep2, log)
	if err != nil {
		return err
	}
	if err := o.store.InsertProof(ctx, job.ID, store.StageBridge, proof); err != nil {
		return fmt.Errorf("persist bridge proof: %w", err)
	}
	return o.transition(ctx, job.ID, store.StatusBridgeProofSubmitted, log)
}

// validate checks both proofs can be decoded before the job becomes settleable.
func (o *Orchestrator) validate(ctx context.Context, job store.BlockJob, log zerolog.Logger) error {
	for _, stage := range []store.ProofStage{store.StagePie, store.StageBridge} {
		proof, err := o.store.GetProof(ctx, job.ID, stage)
		if err != nil {
			return fmt.Errorf("load %s proof: %w", stage, err)
		}
		if _, err := o.parser.ParseOutput(proof); err != nil {
			return fmt.Errorf("%s proof: %w", stage, err)
		}
	}
	return o.transition(ctx, job.ID, store.StatusCompleted, log)
}

func (o *Orchestrator) queryDone(ctx context.Context, queryID prover.QueryID, log zerolog.Logger) (bool, error) {
	status, err := retry.Do(ctx, o.cfg.Retry, log.With().Str("op", "check_status").Logger(),
		func(ctx context.Context) (prover.JobStatus, error) {
			return transient(o.prover.CheckStatus(ctx, queryID))
		})
	if err != nil {
		return false, err
	}
	if status.Failed() {
		return false, fmt.Errorf("query %s: %w", queryID, errProverFailed)
	}
	if !status.Complete() {
		log.Debug().Str("query_id", queryID).Int("jobs", len(status.Jobs)).Msg("Query not complete yet")
		return false, nil
	}
	return true, nil
}

func (o *Orchestrator) fetchProof(ctx context.Context, queryID prover.QueryID, log zerolog.Logger) (string, error) {
	return retry.Do(ctx, o.cfg.Retry, log.With().Str("op", "fetch_proof").Logger(),
		func(ctx context.Context) (string, error) {
			return transient(o.prover.FetchProof(ctx, queryID))
		})
}

func (o *Orchestrator) submitBridge(ctx context.Context, block uint64, pieProof string, log zerolog.Logger) (prover.QueryID, error) {
	queryID, err := retry.Do(ctx, o.cfg.Retry, log.With().Str("op", "submit_layout_bridge").Logger(),
		func(ctx context.Context) (prover.QueryID, error) {
			return transient(o.prover.SubmitLayoutBridgeQuery(ctx, pieProof))
		})
	if err != nil {
		return "", err
	}
	if err := o.store.UpdateQueryIDStep2(ctx, block, queryID); err != nil {
		return "", fmt.Errorf("persist step-2 query id %s: %w", queryID, err)
	}
	log.Info().Str("query_id", queryID).Msg("Layout bridge query submitted")
	return queryID, nil
}

func (o *Orchestrator) transition(ctx context.Context, block uint64, to store.Status, log zerolog.Logger) error {
	if err := o.store.UpdateStatus(ctx, block, to); err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	o.metrics.Transitions.WithLabelValues(to.String()).Inc()
	log.Info().Str("to", to.String()).Msg("Job advanced")
	return nil
}

// recordOutcome applies the give-up policy. Failed prover jobs and undecodable
// proofs fail the job at once; other non-transient errors fail it after
// MaxItemFailures consecutive ticks.
func (o *Orchestrator) recordOutcome(ctx context.Context, job store.BlockJob, log zerolog.Logger, err error) {
	if err == nil {
		delete(o.failures, job.ID)
		return
	}
	if ctx.Err() != nil {
		return
	}
	o.itemError("advance", err)

	switch {
	case errors.Is(err, errProverFailed), errors.Is(err, settlement.ErrDecode):
		log.Error().Err(err).Msg("Job cannot complete")
		o.fail(ctx, job.ID, log)
		return
	case errors.Is(err, store.ErrInvalidTransition):
		// Another writer moved the job; the next tick sees its new status.
		log.Warn().Err(err).Msg("Job status changed concurrently")
		return
	case prover.IsTransient(err):
		log.Warn().Err(err).Msg("Prover unavailable, will retry next tick")
		return
	}

	o.failures[job.ID]++
	n := o.failures[job.ID]
	log.Warn().Err(err).Int("consecutive_failures", n).Msg("Failed to advance job")
	if n >= o.cfg.MaxItemFailures {
		o.fail(ctx, job.ID, log)
	}
}

func (o *Orchestrator) fail(ctx context.Context, block uint64, log zerolog.Logger) {
	delete(o.failures, block)
	if err := o.store.UpdateStatus(ctx, block, store.StatusFailed); err != nil {
		log.Error().Err(err).Msg("Failed to mark job failed")
		return
	}
	o.metrics.Transitions.WithLabelValues(store.StatusFailed.String()).Inc()
	log.Error().Msg("Job marked failed")
}
