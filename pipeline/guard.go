package pipeline

import (
	"context"
	"sync"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// ExtractionFinder is the dedup-by-hash lookup the runtime consults before
// enqueueing an extraction task, satisfied by
// storage/postgres.ExtractionRepo.FindExisting.
type ExtractionFinder interface {
	FindExisting(ctx context.Context, documentID, templateID, contentHash string) (domain.ExtractionRecord, bool, error)
}

// ConcurrencyGuard enforces spec §4.1's "a user may not have two concurrent
// extraction jobs" rule. It is deliberately in-memory and per-process: a
// production deployment backs this with a database advisory lock or a
// unique partial index on (owner_user_id) WHERE status='running', but the
// guard's decision logic is identical either way. This type keeps the
// active jobs in a map and has no storage dependency.
type ConcurrencyGuard struct {
	mu     sync.Mutex
	active map[string]string // ownerUserID -> jobID
}

// NewConcurrencyGuard constructs an empty guard.
func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{active: make(map[string]string)}
}

// Acquire reserves the extraction slot for ownerUserID, returning a
// core.ErrConcurrencyLimit error if that user already has a job running.
func (g *ConcurrencyGuard) Acquire(ownerUserID, jobID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.active[ownerUserID]; ok && existing != jobID {
		return core.NewError("pipeline.ConcurrencyGuard.Acquire", core.ErrConcurrencyLimit,
			"user already has an extraction job running: "+existing, nil)
	}
	g.active[ownerUserID] = jobID
	return nil
}

// Release frees ownerUserID's slot once their job reaches a terminal state.
func (g *ConcurrencyGuard) Release(ownerUserID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, ownerUserID)
}

// CheckDuplicate short-circuits the extraction chain before enqueue when an
// ExtractionRecord already exists for the same document+template+content
// hash (spec §4.1 "Duplicate-by-hash detection short-circuits the chain
// before enqueue").
func CheckDuplicate(ctx context.Context, finder ExtractionFinder, documentID, templateID, contentHash string) (domain.ExtractionRecord, bool, error) {
	existing, found, err := finder.FindExisting(ctx, documentID, templateID, contentHash)
	if err != nil {
		return domain.ExtractionRecord{}, false, core.NewError("pipeline.CheckDuplicate", core.ErrStorage, "dedup lookup failed", err)
	}
	if found {
		existing.FromCache = true
	}
	return existing, found, nil
}
