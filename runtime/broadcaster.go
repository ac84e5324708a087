// Package runtime handles live fan-out of persisted messages.
// It orchestrates delivery without containing business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-core/contract"
	"chat-core/domain/event"
)

type Set map[string]struct{}

// Broadcaster is the topic-keyed publish/subscribe registry.
// Topics are canonical channel names. The registry is process-local:
// instances do not share subscriber state, so a multi-instance
// deployment needs an external transport mirroring publishes.
type Broadcaster struct {
	mu           sync.RWMutex
	log          *slog.Logger
	sessions     map[string]contract.EventSink // map subscriber -> sink
	topicMembers map[string]Set                // map channel name -> subscribers
	sinkTimeout  time.Duration
}

func NewBroadcaster(log *slog.Logger, sinkTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		log:          log,
		sessions:     make(map[string]contract.EventSink),
		topicMembers: make(map[string]Set),
		sinkTimeout:  sinkTimeout,
	}
}

// Subscribe registers a subscriber's sink and assigns it to a topic.
// If the topic does not yet exist in the registry, it is initialized on the fly.
func (b *Broadcaster) Subscribe(subscriberID, channelName string, sink contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions[subscriberID] = sink

	if _, ok := b.topicMembers[channelName]; !ok {
		b.topicMembers[channelName] = make(Set)
	}
	b.topicMembers[channelName][subscriberID] = struct{}{}
}

// Unsubscribe removes a subscriber from the topic and drops its session
// when no topic references it anymore. Empty topic sets are removed to
// prevent the registry growing over time.
func (b *Broadcaster) Unsubscribe(subscriberID, channelName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if members, ok := b.topicMembers[channelName]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(b.topicMembers, channelName)
		}
	}

	for _, members := range b.topicMembers {
		if _, stillUsed := members[subscriberID]; stillUsed {
			return
		}
	}
	delete(b.sessions, subscriberID)
}

// Publish delivers the event to every sink currently subscribed to its
// topic. Delivery is best-effort: a sink error or timeout is logged and
// never propagated, and a subscriber that is not registered at publish
// time never receives the event over this path.
func (b *Broadcaster) Publish(ctx context.Context, e event.DomainEvent) {
	for _, sink := range b.sinksFor(e.Channel()) {
		sinkCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			b.log.Warn("Sink delivery failed", "channel", e.Channel(), "err", err)
		}
		cancel()
	}
}

// sinksFor resolves the topic's subscriber ids into live sinks.
// The two-step lookup keeps one session per subscriber even when it
// listens on several channels.
func (b *Broadcaster) sinksFor(channelName string) []contract.EventSink {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members, ok := b.topicMembers[channelName]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for subscriberID := range members {
		if sink, exists := b.sessions[subscriberID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}
