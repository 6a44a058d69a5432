package webrtc

import "sync"

// DefaultCandidateQueueCap bounds how many remote ICE candidates are
// held while the remote description is still in flight. Overflow evicts
// the oldest entry; ICE tolerates the loss of individual candidates.
const DefaultCandidateQueueCap = 64

type candidateQueue struct {
	mu       sync.Mutex
	items    []string
	capacity int
}

func newCandidateQueue(capacity int) *candidateQueue {
	if capacity <= 0 {
		capacity = DefaultCandidateQueueCap
	}
	return &candidateQueue{capacity: capacity}
}

// push buffers a candidate, reporting whether an older one was evicted.
func (q *candidateQueue) push(candidate string) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, candidate)
	return evicted
}

// drain empties the queue and returns the candidates in arrival order.
func (q *candidateQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *candidateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
