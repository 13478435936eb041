package http

// Route patterns for the pipeline HTTP surface.
const (
	routeHealth      = "/health"
	routeCursor      = "/v1/pipeline/cursor"
	routeBlocks      = "/v1/blocks"
	routeBlock       = "/v1/blocks/{id:[0-9]+}"
	routeBlockProof  = "/v1/blocks/{id:[0-9]+}/proofs/{stage}"
	routeBlockProofs = "/v1/blocks/{id:[0-9]+}/proofs"
)

// Route names for mux URL building.
const (
	routeNameHealth      = "health"
	routeNameCursor      = "pipeline_cursor"
	routeNameBlocks      = "blocks_list"
	routeNameBlock       = "blocks_get"
	routeNameBlockProof  = "blocks_proof_get"
	routeNamePruneProofs = "blocks_proofs_delete"
)
