package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/saya/x/prover"
	"github.com/compose-network/saya/x/retry"
	"github.com/compose-network/saya/x/settlement"
	"github.com/compose-network/saya/x/store"
)

type fakeProver struct {
	mu        sync.Mutex
	next      int
	statuses  map[string]prover.JobStatus
	proofs    map[string]string
	submitErr error
	fetchErr  error
	traces    []string
	bridges   []string
}

func newFakeProver() *fakeProver {
	return &fakeProver{statuses: make(map[string]prover.JobStatus), proofs: make(map[string]string)}
}

func (p *fakeProver) newQuery(proof string) string {
	p.next++
	id := fmt.Sprintf("q%d", p.next)
	p.statuses[id] = prover.JobStatus{}
	p.proofs[id] = proof
	return id
}

func (p *fakeProver) SubmitProofGeneration(_ context.Context, trace []byte) (prover.QueryID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.traces = append(p.traces, string(trace))
	return p.newQuery("pie:" + string(trace)), nil
}

func (p *fakeProver) SubmitLayoutBridgeQuery(_ context.Context, proof string) (prover.QueryID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bridges = append(p.bridges, proof)
	return p.newQuery("bridge:" + proof), nil
}

func (p *fakeProver) CheckStatus(_ context.Context, id prover.QueryID) (prover.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.statuses[id]
	if !ok {
		return prover.JobStatus{}, fmt.Errorf("query %s: %w", id, prover.ErrNotFound)
	}
	return st, nil
}

func (p *fakeProver) FetchProof(_ context.Context, id prover.QueryID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return "", p.fetchErr
	}
	proof, ok := p.proofs[id]
	if !ok {
		return "", prover.ErrNotFound
	}
	return proof, nil
}

func (p *fakeProver) setStatus(id string, statuses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	jobs := make([]prover.Job, len(statuses))
	for i, s := range statuses {
		jobs[i] = prover.Job{Status: s}
	}
	p.statuses[id] = prover.JobStatus{Jobs: jobs}
}

// completeAll marks every known query as completed.
func (p *fakeProver) completeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.statuses {
		p.statuses[id] = prover.JobStatus{Jobs: []prover.Job{{Status: prover.JobStatusCompleted}}}
	}
}

func (p *fakeProver) setProof(id, proof string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proofs[id] = proof
}

type fakeTraces struct {
	mu     sync.Mutex
	blocks []uint64
	calls  int
	err    error
}

func (g *fakeTraces) Generate(_ context.Context, block uint64) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	g.blocks = append(g.blocks, block)
	return []byte(fmt.Sprintf("trace-%d", block)), nil
}

func (g *fakeTraces) attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeTraces) generated() []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint64(nil), g.blocks...)
}

// fakeSettler models the core contract. With autoConfirm the settled block
// advances as soon as update_state is sent.
type fakeSettler struct {
	mu          sync.Mutex
	block       uint64
	autoConfirm bool
	stateErr    error
	updateErr   error
	updates     []string
}

func (s *fakeSettler) GetState(context.Context) (settlement.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateErr != nil {
		return settlement.State{}, s.stateErr
	}
	return settlement.State{BlockNumber: s.block}, nil
}

func (s *fakeSettler) UpdateState(_ context.Context, pie, bridge string) (*settlement.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.updates = append(s.updates, pie+"|"+bridge)
	if s.autoConfirm {
		s.block++
	}
	return &settlement.UpdateResult{TxHash: new(felt.Felt).SetUint64(uint64(len(s.updates)))}, nil
}

func (s *fakeSettler) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

// stubParser rejects proofs containing "bad".
type stubParser struct{}

func (stubParser) ParseOutput(proof string) ([]*felt.Felt, error) {
	if strings.Contains(proof, "bad") {
		return nil, fmt.Errorf("%w: stub", settlement.ErrDecode)
	}
	return []*felt.Felt{new(felt.Felt).SetUint64(1)}, nil
}

type harness struct {
	o       *Orchestrator
	store   *store.Memory
	prover  *fakeProver
	traces  *fakeTraces
	settler *fakeSettler
	clock   time.Time
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SubmitInterval = 5 * time.Millisecond
	cfg.StatusInterval = 5 * time.Millisecond
	cfg.SettleInterval = 5 * time.Millisecond
	cfg.Retry = retry.Config{MaxAttempts: 2, Delay: time.Millisecond, Multiplier: 1}
	return cfg
}

func newHarness(t *testing.T, cfg Config, settled uint64) *harness {
	t.Helper()
	h := &harness{
		store:   store.NewMemory(),
		prover:  newFakeProver(),
		traces:  &fakeTraces{},
		settler: &fakeSettler{block: settled, autoConfirm: true},
		clock:   time.Unix(1_700_000_000, 0),
	}
	o, err := New(cfg, h.store, h.prover, h.traces, h.settler, stubParser{}, zerolog.Nop())
	require.NoError(t, err)
	o.now = func() time.Time { return h.clock }
	h.o = o
	return h
}

func (h *harness) status(t *testing.T, id uint64) store.Status {
	t.Helper()
	job, err := h.store.GetBlock(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}
