package sse

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
)

// SSEEvent is a single server-sent event as delivered to a dashboard
// client. IDs increase monotonically per process so a reconnecting
// client can resume from its Last-Event-ID header.
type SSEEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// EventHeartbeat keeps idle connections alive through proxies. All
// other event types carry the bus event name they were forwarded from.
const EventHeartbeat = "heartbeat"

var globalEventID int64

func NewEvent(eventType string, payload any) SSEEvent {
	id := atomic.AddInt64(&globalEventID, 1)
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}

	return SSEEvent{
		ID:   strconv.FormatInt(id, 10),
		Type: eventType,
		Data: string(data),
	}
}
