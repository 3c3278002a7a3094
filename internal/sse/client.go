package sse

import (
	"sync"
	"sync/atomic"
)

// SSEClient is one connected dashboard stream. The dashboard has no
// user accounts, so clients are keyed by a random connection ID minted
// at subscribe time.
type SSEClient struct {
	ID   string
	Ch   chan SSEEvent
	Done chan struct{}

	fullStreak atomic.Int32
	closeOnce  sync.Once
}

func NewClient(connID string) *SSEClient {
	return &SSEClient{
		ID:   connID,
		Ch:   make(chan SSEEvent, 512),
		Done: make(chan struct{}),
	}
}

func (c *SSEClient) Close() {
	if c == nil {
		return
	}

	c.closeOnce.Do(func() {
		close(c.Done)
	})
}

func (c *SSEClient) MarkDispatchSuccess() {
	if c == nil {
		return
	}
	c.fullStreak.Store(0)
}

func (c *SSEClient) MarkDispatchFull() int32 {
	if c == nil {
		return 0
	}
	return c.fullStreak.Add(1)
}
