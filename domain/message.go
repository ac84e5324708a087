// Package domain contains core concepts of the messaging core.
// This file defines Message entities and related rules.
// Messages are append-only: edits and deletions only mutate flags.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageCode   MessageType = "code"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageCode:
		return true
	}
	return false
}

// Message is one durable entry in a channel.
// CreatedAt is assigned at durable append and defines ordering;
// ties are broken by ID.
type Message struct {
	ID          uuid.UUID         `json:"id"`
	ChannelName string            `json:"channel_name"`
	Sender      Participant       `json:"sender"`
	Content     string            `json:"content"`
	Type        MessageType       `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Deleted     bool              `json:"deleted,omitempty"`
	EditedAt    *time.Time        `json:"edited_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
