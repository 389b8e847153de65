package ingest

import (
	"sync"

	"github.com/mrzor/procwatch/internal/registry"
)

// Queue buffers candidate records between the discovery producers and the
// reconciliation loop. Many producers append concurrently; the single
// consumer drains. Order among candidates carries no meaning, only the
// atomicity of append and drain does.
type Queue struct {
	mu      sync.Mutex
	pending []registry.Record
}

// NewQueue creates an empty candidate queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds a candidate record.
func (q *Queue) Append(rec registry.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, rec)
}

// Drain removes and returns all buffered candidates.
func (q *Queue) Drain() []registry.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of buffered candidates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
