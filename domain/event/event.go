package event

import (
	"chat-core/domain"
)

// DomainEvent is anything the broadcaster can fan out to live subscribers.
type DomainEvent interface {
	Channel() string
}

// MessagePosted is published after a message is durably appended.
// Subscribers only ever observe persisted messages.
type MessagePosted struct {
	Message domain.Message
}

func (m MessagePosted) Channel() string {
	return m.Message.ChannelName
}
