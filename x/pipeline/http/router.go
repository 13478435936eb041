package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeHealth, h.handleHealth).Methods(http.MethodGet).Name(routeNameHealth)
	r.HandleFunc(routeCursor, h.handleCursor).Methods(http.MethodGet).Name(routeNameCursor)
	r.HandleFunc(routeBlocks, h.handleListBlocks).Methods(http.MethodGet).Name(routeNameBlocks)
	r.HandleFunc(routeBlock, h.handleGetBlock).Methods(http.MethodGet).Name(routeNameBlock)
	r.HandleFunc(routeBlockProof, h.handleGetProof).Methods(http.MethodGet).Name(routeNameBlockProof)
	r.HandleFunc(routeBlockProofs, h.handleDeleteProofs).
		Methods(http.MethodDelete).
		Name(routeNamePruneProofs)
}
