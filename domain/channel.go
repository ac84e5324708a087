package domain

import (
	"time"
)

type ChannelType string

const (
	ChannelGroup ChannelType = "group"
	ChannelDM    ChannelType = "dm"
)

// Channel is a named, closed-membership conversation scope.
// Name is the canonical identity and is globally unique.
type Channel struct {
	Name           string        `json:"name"`
	Type           ChannelType   `json:"type"`
	Participants   []Participant `json:"participants"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

func (c Channel) HasParticipant(p Participant) bool {
	for _, member := range c.Participants {
		if member == p {
			return true
		}
	}
	return false
}
