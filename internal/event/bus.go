package event

import (
	"strings"
	"sync"
)

// Handler receives the event name alongside the payload so a single
// function can serve subscriptions to several events.
type Handler func(event string, payload any)

// Bus is a tiny in-process publish/subscribe fanout. Handlers run on
// their own goroutines; publishers never block on slow subscribers.
type Bus struct {
	handlers sync.Map
	mu       sync.Mutex
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(event string, handler Handler) {
	if b == nil || handler == nil {
		return
	}
	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]Handler, 0, 1)
	if current, ok := b.handlers.Load(eventName); ok {
		if casted, valid := current.([]Handler); valid {
			handlers = append(handlers, casted...)
		}
	}
	handlers = append(handlers, handler)
	b.handlers.Store(eventName, handlers)
}

// SubscribeMany registers one handler for several events at once.
func (b *Bus) SubscribeMany(events []string, handler Handler) {
	for _, event := range events {
		b.Subscribe(event, handler)
	}
}

func (b *Bus) Publish(event string, payload any) {
	if b == nil {
		return
	}
	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	current, ok := b.handlers.Load(eventName)
	if !ok {
		return
	}
	handlers, ok := current.([]Handler)
	if !ok || len(handlers) == 0 {
		return
	}
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		go handler(eventName, payload)
	}
}
