package event

import (
	"sync"
	"testing"
	"time"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	got := map[string]int{}
	done := make(chan struct{}, 3)

	bus.Subscribe(EventSnapshotRecorded, func(event string, payload any) {
		mu.Lock()
		got[event]++
		mu.Unlock()
		done <- struct{}{}
	})
	bus.SubscribeMany([]string{EventSnapshotRecorded, EventTrafficAlert}, func(event string, payload any) {
		mu.Lock()
		got[event]++
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(EventSnapshotRecorded, SnapshotRecordedPayload{Hour: "2026-05-01 10:00", Servers: 2})
	bus.Publish(EventTrafficAlert, TrafficAlertPayload{ServerID: "101", Level: 90})
	bus.Publish("unheard.event", nil)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for handlers, got %v", got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[EventSnapshotRecorded] != 2 {
		t.Fatalf("snapshot event should reach both handlers, got %d", got[EventSnapshotRecorded])
	}
	if got[EventTrafficAlert] != 1 {
		t.Fatalf("alert event should reach one handler, got %d", got[EventTrafficAlert])
	}
}

func TestBusIgnoresBadInput(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("", func(string, any) {})
	bus.Subscribe(EventTrafficAlert, nil)
	// No handlers registered; publishing must not panic.
	bus.Publish(EventTrafficAlert, nil)
	bus.Publish("", nil)
}
