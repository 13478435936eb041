package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/compose-network/saya/x/retry"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
)

// settleTick submits the block right after the last settled one, if it is
// completed. At most one update_state is in flight: a sent settlement is not
// repeated until the chain confirms it or SettlementTimeout passes.
func (o *Orchestrator) settleTick(ctx context.Context) {
	log := o.log.With().Str("task", "settle").Logger()

	state, err := retry.Do(ctx, o.cfg.Retry, log.With().Str("op", "get_state").Logger(),
		func(ctx context.Context) (settlement.State, error) {
			return o.settler.GetState(ctx)
		})
	if err != nil {
		o.itemError("settle", err)
		log.Warn().Err(err).Msg("Failed to read settled state")
		return
	}
	chain := state.BlockNumber

	if p := o.pending; p != nil {
		switch {
		case chain >= p.block:
			log.Info().
				Uint64("block", p.block).
				Str("tx_hash", p.txHash).
				Dur("after", o.now().Sub(p.sentAt)).
				Msg("Settlement confirmed")
			o.pending = nil
			o.metrics.Settlements.WithLabelValues("confirmed").Inc()
			if o.cfg.PruneSettledProofs {
				o.prune(ctx, p.block)
			}
		case o.now().Sub(p.sentAt) < o.cfg.SettlementTimeout:
			log.Debug().
				Uint64("block", p.block).
				Uint64("chain_block", chain).
				Msg("Waiting for settlement confirmation")
			o.setSettled(p.block)
			return
		default:
			log.Warn().
				Uint64("block", p.block).
				Str("tx_hash", p.txHash).
				Dur("timeout", o.cfg.SettlementTimeout).
				Msg("Settlement not confirmed in time, will resend")
			o.pending = nil
			o.metrics.Settlements.WithLabelValues("timeout").Inc()
		}
	}
	o.setSettled(chain)

	candidate := chain + 1
	log = log.With().Uint64("block", candidate).Logger()

	job, err := o.store.GetBlock(ctx, candidate)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().Msg("Next block not tracked yet")
		return
	}
	if err != nil {
		o.itemError("settle", err)
		log.Warn().Err(err).Msg("Failed to load candidate job")
		return
	}

	switch job.Status {
	case store.StatusCompleted:
	case store.StatusFailed:
		// Blocks settle strictly in order; a failed block needs operator action.
		log.Error().Msg("Next block failed proving, settlement halted")
		return
	default:
		log.Debug().Str("status", job.Status.String()).Msg("Next block not completed yet")
		return
	}

	pie, ok := o.settleProof(ctx, candidate, store.StagePie, log)
	if !ok {
		return
	}
	bridge, ok := o.settleProof(ctx, candidate, store.StageBridge, log)
	if !ok {
		return
	}

	// Not retried: the next tick re-reads chain state first.
	res, err := o.settler.UpdateState(ctx, pie, bridge)
	if err != nil {
		o.itemError("settle", err)
		o.metrics.Settlements.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("update_state failed")
		return
	}

	txHash := ""
	if res != nil && res.TxHash != nil {
		txHash = res.TxHash.String()
	}
	o.pending = &pendingSettlement{block: candidate, txHash: txHash, sentAt: o.now()}
	o.setSettled(candidate)
	o.metrics.Settlements.WithLabelValues("sent").Inc()
	log.Info().Str("tx_hash", txHash).Msg("Block settled")
}

// settleProof loads one proof of a completed candidate. A missing proof halts
// settlement until an operator restores it.
func (o *Orchestrator) settleProof(ctx context.Context, block uint64, stage store.ProofStage, log zerolog.Logger) (string, bool) {
	proof, err := o.store.GetProof(ctx, block, stage)
	switch {
	case err == nil:
		return proof, true
	case errors.Is(err, store.ErrNotFound):
		o.metrics.Settlements.WithLabelValues("missing_proof").Inc()
		log.Error().Str("stage", stage.String()).Msg("Completed block has no proof, settlement halted")
	default:
		o.itemError("settle", err)
		log.Warn().Err(err).Str("stage", stage.String()).Msg("Failed to load proof")
	}
	return "", false
}

func (o *Orchestrator) prune(ctx context.Context, block uint64) {
	if err := o.store.DeleteProof(ctx, block); err != nil && !errors.Is(err, store.ErrNotFound) {
		o.log.Warn().Err(err).Uint64("block", block).Msg("Failed to prune settled proofs")
	}
}
