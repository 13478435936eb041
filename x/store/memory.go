package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store with the same semantics as SQLite.
// Contents are lost on restart; used by tests and dry runs.
type Memory struct {
	mu     sync.RWMutex
	blocks map[uint64]BlockJob
	proofs map[uint64]ProofRecord
}

func NewMemory() *Memory {
	return &Memory{
		blocks: make(map[uint64]BlockJob),
		proofs: make(map[uint64]ProofRecord),
	}
}

func (m *Memory) InsertBlock(_ context.Context, id uint64, queryIDStep1 string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(status))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[id]; ok {
		return fmt.Errorf("block %d: %w", id, ErrDuplicateKey)
	}
	m.blocks[id] = BlockJob{ID: id, QueryIDStep1: queryIDStep1, Status: status}
	return nil
}

func (m *Memory) GetBlock(_ context.Context, id uint64) (BlockJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.blocks[id]
	if !ok {
		return BlockJob{}, fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	return job, nil
}

func (m *Memory) ListBlocks(_ context.Context) ([]BlockJob, error) {
	return m.filter(func(BlockJob) bool { return true }), nil
}

func (m *Memory) ListBlocksByStatus(_ context.Context, status Status) ([]BlockJob, error) {
	return m.filter(func(j BlockJob) bool { return j.Status == status }), nil
}

func (m *Memory) CountBlocksByStatus(ctx context.Context, status Status) (int, error) {
	jobs, _ := m.ListBlocksByStatus(ctx, status)
	return len(jobs), nil
}

func (m *Memory) UpdateStatus(_ context.Context, id uint64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(status))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.blocks[id]
	if !ok {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	if job.Status == status {
		return nil
	}
	if !CanTransition(job.Status, status) {
		return fmt.Errorf("block %d %s -> %s: %w", id, job.Status, status, ErrInvalidTransition)
	}
	job.Status = status
	m.blocks[id] = job
	return nil
}

func (m *Memory) UpdateQueryIDStep2(_ context.Context, id uint64, queryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.blocks[id]
	if !ok {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	job.QueryIDStep2 = queryID
	m.blocks[id] = job
	return nil
}

func (m *Memory) InsertProof(_ context.Context, id uint64, stage ProofStage, proof string) error {
	if _, err := stage.column(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[id]; !ok {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	rec := m.proofs[id]
	rec.BlockID = id
	if stage == StagePie {
		rec.PieProof = proof
	} else {
		rec.BridgeProof = proof
	}
	m.proofs[id] = rec
	return nil
}

func (m *Memory) GetProof(_ context.Context, id uint64, stage ProofStage) (string, error) {
	if _, err := stage.column(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.proofs[id]
	var proof string
	if stage == StagePie {
		proof = rec.PieProof
	} else {
		proof = rec.BridgeProof
	}
	if !ok || proof == "" {
		return "", fmt.Errorf("%s proof for block %d: %w", stage, id, ErrNotFound)
	}
	return proof, nil
}

func (m *Memory) DeleteProof(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.proofs[id]; !ok {
		return fmt.Errorf("proofs for block %d: %w", id, ErrNotFound)
	}
	delete(m.proofs, id)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) filter(keep func(BlockJob) bool) []BlockJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BlockJob, 0, len(m.blocks))
	for _, job := range m.blocks {
		if keep(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
