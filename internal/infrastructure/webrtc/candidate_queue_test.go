package webrtc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateQueuePreservesArrivalOrder(t *testing.T) {
	q := newCandidateQueue(8)
	for i := 0; i < 5; i++ {
		evicted := q.push(fmt.Sprintf("candidate-%d", i))
		assert.False(t, evicted)
	}

	got := q.drain()
	assert.Equal(t, []string{"candidate-0", "candidate-1", "candidate-2", "candidate-3", "candidate-4"}, got)
	assert.Equal(t, 0, q.len())
}

func TestCandidateQueueEvictsOldestWhenFull(t *testing.T) {
	q := newCandidateQueue(3)
	q.push("a")
	q.push("b")
	q.push("c")

	evicted := q.push("d")
	assert.True(t, evicted)
	assert.Equal(t, []string{"b", "c", "d"}, q.drain())
}

func TestCandidateQueueDrainEmpties(t *testing.T) {
	q := newCandidateQueue(4)
	q.push("a")
	assert.Len(t, q.drain(), 1)
	assert.Empty(t, q.drain())
}

func TestCandidateQueueDefaultCap(t *testing.T) {
	q := newCandidateQueue(0)
	for i := 0; i < DefaultCandidateQueueCap; i++ {
		assert.False(t, q.push("c"))
	}
	assert.True(t, q.push("overflow"))
	assert.Equal(t, DefaultCandidateQueueCap, q.len())
}
