package resilience

import (
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps concurrent in-flight calls to one downstream. Calls beyond
// the limit fail fast instead of queueing.
type Bulkhead struct {
	name string
	sem  *semaphore.Weighted
}

// NewBulkhead constructs a bulkhead with the given concurrency limit.
func NewBulkhead(name string, limit int64) *Bulkhead {
	if limit <= 0 {
		limit = 10
	}
	return &Bulkhead{name: name, sem: semaphore.NewWeighted(limit)}
}

// Acquire claims a slot without blocking.
func (b *Bulkhead) Acquire() error {
	if !b.sem.TryAcquire(1) {
		return fmt.Errorf("%w: %s", ErrBulkheadFull, b.name)
	}
	return nil
}

// Release returns a slot.
func (b *Bulkhead) Release() {
	b.sem.Release(1)
}
