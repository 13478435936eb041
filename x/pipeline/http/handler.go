package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/saya/server/api"
	"github.com/compose-network/saya/x/pipeline"
	"github.com/compose-network/saya/x/store"
)

// CursorSource reports pipeline progress.
type CursorSource interface {
	Cursor() pipeline.Cursor
}

type Handler struct {
	store  store.Store
	cursor CursorSource
	log    zerolog.Logger
}

func NewHandler(st store.Store, cursor CursorSource, log zerolog.Logger) *Handler {
	return &Handler{
		store:  st,
		cursor: cursor,
		log:    log.With().Str("component", "pipeline-http").Logger(),
	}
}

type blocksResponse struct {
	Blocks []store.BlockJob `json:"blocks"`
	Count  int              `json:"count"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleCursor(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, h.cursor.Cursor())
}

// handleListBlocks lists all jobs, optionally filtered by ?status=.
func (h *Handler) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []store.BlockJob
		err  error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, perr := store.ParseStatus(raw)
		if perr != nil {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_status", perr.Error(), nil)
			return
		}
		jobs, err = h.store.ListBlocksByStatus(r.Context(), status)
	} else {
		jobs, err = h.store.ListBlocks(r.Context())
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []store.BlockJob{}
	}
	apicommon.WriteJSON(w, http.StatusOK, blocksResponse{Blocks: jobs, Count: len(jobs)})
}

func (h *Handler) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	job, err := h.store.GetBlock(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, "block_not_found", "block is not tracked", nil)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) handleGetProof(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}
	stage, err := store.ParseProofStage(mux.Vars(r)["stage"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_stage", "stage must be pie or bridge", nil)
		return
	}

	proof, err := h.store.GetProof(r.Context(), id, stage)
	if errors.Is(err, store.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, "proof_not_found", "no "+stage.String()+" proof for block", nil)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	rec := store.ProofRecord{BlockID: id}
	switch stage {
	case store.StagePie:
		rec.PieProof = proof
	case store.StageBridge:
		rec.BridgeProof = proof
	}
	apicommon.WriteJSON(w, http.StatusOK, rec)
}

// handleDeleteProofs drops the stored proofs of a settled or failed block. The
// job row is kept.
func (h *Handler) handleDeleteProofs(w http.ResponseWriter, r *http.Request) {
	id, ok := blockID(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetBlock(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, "block_not_found", "block is not tracked", nil)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	settled := h.cursor.Cursor().LastSettledBlock
	if id > settled && job.Status != store.StatusFailed {
		apicommon.WriteError(w, r, http.StatusConflict, "block_not_settled",
			"proofs of an unsettled block are still needed", map[string]any{
				"status":             job.Status,
				"last_settled_block": settled,
			})
		return
	}

	err = h.store.DeleteProof(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, "proof_not_found", "block has no stored proofs", nil)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.log.Info().Uint64("block", id).Msg("Proofs deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Store request failed")
	apicommon.WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to read job store", nil)
}

func blockID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_block_id", "block id must be a uint64", nil)
		return 0, false
	}
	return id, true
}
