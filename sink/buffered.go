// Package sink provides EventSink implementations for live subscribers.
package sink

import (
	"context"
	"log/slog"

	"chat-core/domain/event"
)

// Buffered decouples slow consumers from the broadcaster with a bounded
// channel. On overflow the oldest buffered event is dropped, so memory
// stays bounded and the consumer always sees the freshest tail.
type Buffered struct {
	events chan event.DomainEvent
	log    *slog.Logger
}

func NewBuffered(log *slog.Logger, size int) *Buffered {
	return &Buffered{
		events: make(chan event.DomainEvent, size),
		log:    log,
	}
}

func (s *Buffered) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	default:
	}

	// Buffer full: evict the oldest entry and retry once.
	select {
	case dropped := <-s.events:
		s.log.Debug("Dropping oldest buffered event", "channel", dropped.Channel())
	default:
	}
	select {
	case s.events <- e:
	default:
		s.log.Debug("Buffered event lost", "channel", e.Channel())
	}
	return nil
}

// Events exposes the consumer side of the buffer.
func (s *Buffered) Events() <-chan event.DomainEvent {
	return s.events
}
