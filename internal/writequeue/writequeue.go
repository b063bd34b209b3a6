// Package writequeue serializes mutating operations per scope.
//
// Every mutating operation for one scope (one project, or the global scope)
// funnels through a single FIFO chain: operation N+1 cannot enter its
// critical section before operation N releases, regardless of N's duration.
// This deliberately over-serializes across document names and sub-paths so
// logically related documents a caller updates together cannot interleave.
//
// Reads never pass through the queue and may race ahead of a pending write.
package writequeue

import "sync"

// Coordinator chains a tail marker per scope identifier. Lock state is owned
// by the Coordinator instance, never global, so two stores over different
// data directories do not contend.
type Coordinator struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{tails: make(map[string]chan struct{})}
}

// Acquire blocks until all previously queued operations for scopeID have
// released, then returns the release function for this operation.
//
// There is no cancellation: once queued, the operation must run to
// completion before releasing. Callers must invoke release exactly via
// defer so a panicking critical section cannot deadlock the scope; release
// itself is idempotent.
func (c *Coordinator) Acquire(scopeID string) (release func()) {
	c.mu.Lock()
	prev := c.tails[scopeID]
	cur := make(chan struct{})
	c.tails[scopeID] = cur
	c.mu.Unlock()

	if prev != nil {
		<-prev
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			// Drop the map entry only if nobody queued behind us.
			if c.tails[scopeID] == cur {
				delete(c.tails, scopeID)
			}
			c.mu.Unlock()
			close(cur)
		})
	}
}

// Pending reports whether any operation currently holds or awaits the scope.
func (c *Coordinator) Pending(scopeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tails[scopeID]
	return ok
}
