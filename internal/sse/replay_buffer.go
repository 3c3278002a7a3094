package sse

import (
	"strconv"
	"sync"
)

const defaultReplayCapacity = 1000

// ReplayBuffer retains the most recent events so a reconnecting client
// can catch up from its Last-Event-ID instead of missing alerts fired
// while the browser tab was offline.
type ReplayBuffer struct {
	mu      sync.RWMutex
	items   []SSEEvent
	next    int
	wrapped bool
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplayCapacity
	}

	return &ReplayBuffer{
		items: make([]SSEEvent, capacity),
	}
}

func (rb *ReplayBuffer) Push(event SSEEvent) {
	if rb == nil {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.items[rb.next] = event
	rb.next++
	if rb.next == len(rb.items) {
		rb.next = 0
		rb.wrapped = true
	}
}

// Since returns buffered events newer than lastID in arrival order. An
// empty or malformed lastID returns the whole buffer.
func (rb *ReplayBuffer) Since(lastID string) []SSEEvent {
	if rb == nil {
		return nil
	}

	rb.mu.RLock()
	var snapshot []SSEEvent
	if rb.wrapped {
		snapshot = make([]SSEEvent, 0, len(rb.items))
		snapshot = append(snapshot, rb.items[rb.next:]...)
		snapshot = append(snapshot, rb.items[:rb.next]...)
	} else {
		snapshot = make([]SSEEvent, rb.next)
		copy(snapshot, rb.items[:rb.next])
	}
	rb.mu.RUnlock()

	lastSeq, err := strconv.ParseInt(lastID, 10, 64)
	if err != nil {
		return snapshot
	}

	result := make([]SSEEvent, 0, len(snapshot))
	for _, event := range snapshot {
		seq, err := strconv.ParseInt(event.ID, 10, 64)
		if err != nil {
			continue
		}
		if seq > lastSeq {
			result = append(result, event)
		}
	}

	return result
}
