package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReadPosition is the per-participant watermark in one channel.
// At most one exists per (channel, participant) pair; it is lazily
// materialized on first use. A nil LastReadAt means everything is unread.
type ReadPosition struct {
	ChannelName       string      `json:"channel_name"`
	Participant       Participant `json:"participant"`
	LastReadAt        *time.Time  `json:"last_read_at,omitempty"`
	LastReadMessageID *uuid.UUID  `json:"last_read_message_id,omitempty"`
}
