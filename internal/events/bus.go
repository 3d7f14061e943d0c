package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes a published event. Returning an error marks the delivery
// as failed for this handler only; other handlers still receive the event.
type Handler func(ctx context.Context, event Event) error

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	eventType Type
	id        uint64
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher keyed by event type.
// It is an explicit collaborator: construct one in main (or per test) and
// inject it into every producer and consumer. There is no package-level
// singleton.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Type][]registration
	logger   *slog.Logger
}

// NewBus creates an event bus that logs handler failures to the given logger.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Type][]registration),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type. Multiple handlers per
// type are allowed; Publish invokes them in registration order.
func (b *Bus) Subscribe(eventType Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{
		id:      b.nextID,
		handler: handler,
	})
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unsubscribing a
// handler that is no longer registered is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[sub.eventType]
	for i, reg := range regs {
		if reg.id == sub.id {
			b.handlers[sub.eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler registered for its type,
// sequentially and in registration order. A failing or panicking handler is
// logged and skipped; it never prevents the remaining handlers from
// observing the event. Publish returns after all handlers have run.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	regs := make([]registration, len(b.handlers[event.Type]))
	copy(regs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, reg := range regs {
		if err := b.dispatch(ctx, reg.handler, event); err != nil {
			b.logger.Error("Event handler failed",
				"event_type", string(event.Type),
				"event_id", event.ID.String(),
				"error", err,
			)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler(ctx, event)
}
