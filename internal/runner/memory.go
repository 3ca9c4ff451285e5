package runner

import (
	"context"
	"sync"

	"vidpair/internal/correlate"
)

// MemoryRunner records merge invocations instead of launching anything.
// Used in tests and dry runs. Safe for concurrent use.
type MemoryRunner struct {
	mu          sync.Mutex
	invocations []correlate.MergePayload
	failWith    error
}

// NewMemoryRunner creates a runner that accepts every invocation.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) Invoke(_ context.Context, payload correlate.MergePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.invocations = append(r.invocations, payload)
	return nil
}

// Invocations returns a copy of every accepted payload, in order.
func (r *MemoryRunner) Invocations() []correlate.MergePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]correlate.MergePayload, len(r.invocations))
	copy(out, r.invocations)
	return out
}

// FailWith makes subsequent invocations fail with err. Pass nil to accept
// invocations again.
func (r *MemoryRunner) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// Compile-time check that MemoryRunner implements the runner interface
var _ correlate.Runner = (*MemoryRunner)(nil)
