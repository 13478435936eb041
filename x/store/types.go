package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a block or proof row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when inserting a block id that is already tracked.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidTransition is returned when a status write would not move a job forward.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned when a persisted status string cannot be decoded.
	ErrUnknownStatus = errors.New("unknown status")
)

// Status is the lifecycle state of a BlockJob.
type Status int

const (
	StatusPieSubmitted Status = iota + 1
	StatusPieProofGenerated
	StatusBridgeProofSubmitted
	StatusCompleted
	StatusFailed
)

// Persisted representations. BRIDGE_PROOF_SUBMITED is spelled as in the deployed schema.
const (
	statusPieSubmitted         = "PIE_SUBMITTED"
	statusPieProofGenerated    = "PIE_PROOF_GENERATED"
	statusBridgeProofSubmitted = "BRIDGE_PROOF_SUBMITED"
	statusCompleted            = "COMPLETED"
	statusFailed               = "FAILED"
)

// AllStatuses lists every status in state machine order.
var AllStatuses = []Status{
	StatusPieSubmitted,
	StatusPieProofGenerated,
	StatusBridgeProofSubmitted,
	StatusCompleted,
	StatusFailed,
}

func (s Status) String() string {
	switch s {
	case StatusPieSubmitted:
		return statusPieSubmitted
	case StatusPieProofGenerated:
		return statusPieProofGenerated
	case StatusBridgeProofSubmitted:
		return statusBridgeProofSubmitted
	case StatusCompleted:
		return statusCompleted
	case StatusFailed:
		return statusFailed
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus decodes a persisted status string. Unknown strings are an error.
func ParseStatus(s string) (Status, error) {
	switch s {
	case statusPieSubmitted:
		return StatusPieSubmitted, nil
	case statusPieProofGenerated:
		return StatusPieProofGenerated, nil
	case statusBridgeProofSubmitted:
		return StatusBridgeProofSubmitted, nil
	case statusCompleted:
		return StatusCompleted, nil
	case statusFailed:
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return s >= StatusPieSubmitted && s <= StatusFailed
}

// Terminal reports whether no further status writes are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether a job in from may be moved to to.
func CanTransition(from, to Status) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return to == from+1
}

// predecessors returns every status that may legally move to to.
func predecessors(to Status) []Status {
	out := make([]Status, 0, len(AllStatuses))
	for _, from := range AllStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// ProofStage selects which proof column of a ProofRecord is addressed.
type ProofStage int

const (
	StagePie ProofStage = iota + 1
	StageBridge
)

func (s ProofStage) String() string {
	switch s {
	case StagePie:
		return "pie"
	case StageBridge:
		return "bridge"
	default:
		return fmt.Sprintf("ProofStage(%d)", int(s))
	}
}

// ParseProofStage decodes "pie" or "bridge".
func ParseProofStage(s string) (ProofStage, error) {
	switch s {
	case "pie":
		return StagePie, nil
	case "bridge":
		return StageBridge, nil
	default:
		return 0, fmt.Errorf("unknown proof stage %q", s)
	}
}

func (s ProofStage) column() (string, error) {
	switch s {
	case StagePie:
		return "pie_proof", nil
	case StageBridge:
		return "bridge_proof", nil
	default:
		return "", fmt.Errorf("unknown proof stage %d", int(s))
	}
}

// BlockJob tracks one block submitted for proving.
type BlockJob struct {
	ID           uint64 `json:"id"`
	QueryIDStep1 string `json:"query_id_step1"`
	QueryIDStep2 string `json:"query_id_step2,omitempty"`
	Status       Status `json:"status"`
}

// ProofRecord holds the raw proofs fetched for a block.
type ProofRecord struct {
	BlockID     uint64 `json:"block_id"`
	PieProof    string `json:"pie_proof,omitempty"`
	BridgeProof string `json:"bridge_proof,omitempty"`
}

// Store is the durable job table shared by the pipeline tasks.
type Store interface {
	InsertBlock(ctx context.Context, id uint64, queryIDStep1 string, status Status) error
	GetBlock(ctx context.Context, id uint64) (BlockJob, error)
	ListBlocks(ctx context.Context) ([]BlockJob, error)
	ListBlocksByStatus(ctx context.Context, status Status) ([]BlockJob, error)
	CountBlocksByStatus(ctx context.Context, status Status) (int, error)
	UpdateStatus(ctx context.Context, id uint64, status Status) error
	UpdateQueryIDStep2(ctx context.Context, id uint64, queryID string) error

	InsertProof(ctx context.Context, id uint64, stage ProofStage, proof string) error
	GetProof(ctx context.Context, id uint64, stage ProofStage) (string, error)
	DeleteProof(ctx context.Context, id uint64) error

	Close() error
}
