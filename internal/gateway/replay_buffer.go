package gateway

import "sync"

type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer keeps the most recent envelopes of one chart, oldest first,
// for gap backfill over /api/missed.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	head    int // index of the oldest entry once full
	limit   int
}

// NewReplayBuffer creates a buffer holding up to limit envelopes.
func NewReplayBuffer(limit int) *ReplayBuffer {
	if limit <= 0 {
		limit = defaultReplayCap
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, limit), limit: limit}
}

// Push stores a copy of data under seq, evicting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	e := replayEntry{seq: seq, data: append([]byte(nil), data...)}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.limit {
		rb.entries = append(rb.entries, e)
		return
	}
	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % rb.limit
}

// Range returns the envelopes with seq in [fromSeq, toSeq] in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	rb.each(func(e replayEntry) {
		if e.seq >= fromSeq && e.seq <= toSeq {
			out = append(out, e.data)
		}
	})
	return out
}

// Oldest returns the smallest seq still buffered, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if len(rb.entries) == 0 {
		return 0
	}
	return rb.entries[rb.head].seq
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

func (rb *ReplayBuffer) each(fn func(replayEntry)) {
	n := len(rb.entries)
	for i := 0; i < n; i++ {
		fn(rb.entries[(rb.head+i)%n])
	}
}
