//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"chat-core/domain/event"
)

// EventSink receives fanned-out events for one live subscriber.
// Implementations decide their own buffering and overflow policy;
// Consume must not block beyond the broadcaster's per-sink timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IBroadcaster is the in-process, topic-keyed fan-out registry.
// Topics are canonical channel names. Delivery is best-effort and
// ephemeral: durability for offline consumers lives in the store,
// not here. Subscribers must Unsubscribe on disconnect.
type IBroadcaster interface {
	Subscribe(subscriberID, channelName string, sink EventSink)
	Unsubscribe(subscriberID, channelName string)
	Publish(ctx context.Context, e event.DomainEvent)
}
