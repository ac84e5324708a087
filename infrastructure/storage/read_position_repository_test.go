package storage

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-core/domain"
)

func Test_Missing_Position_Is_Lazily_Materialized(t *testing.T) {
	req := require.New(t)
	repository := NewReadPositionRepository(openDB(t), slog.Default())

	// Given no position was ever stored
	position, err := repository.GetReadPosition(domain.GroupChannelName, "alice")
	req.NoError(err)

	// Then absence is not an error: the cursor exists with a nil
	// watermark, meaning everything is unread
	req.Equal(domain.GroupChannelName, position.ChannelName)
	req.Equal(domain.Participant("alice"), position.Participant)
	req.Nil(position.LastReadAt)
	req.Nil(position.LastReadMessageID)
}

func Test_Upsert_Then_Get_Roundtrip(t *testing.T) {
	req := require.New(t)
	repository := NewReadPositionRepository(openDB(t), slog.Default())

	lastRead := time.Now().UTC().Truncate(time.Millisecond)
	messageID := uuid.New()
	position := domain.ReadPosition{
		ChannelName:       "alice-bob",
		Participant:       "bob",
		LastReadAt:        &lastRead,
		LastReadMessageID: &messageID,
	}
	req.NoError(repository.UpsertReadPosition(position))

	fetched, err := repository.GetReadPosition("alice-bob", "bob")
	req.NoError(err)
	req.Equal(position, fetched)
}

func Test_Upsert_Is_One_Row_Per_Pair(t *testing.T) {
	req := require.New(t)
	repository := NewReadPositionRepository(openDB(t), slog.Default())

	first := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	second := time.Now().UTC().Truncate(time.Millisecond)

	req.NoError(repository.UpsertReadPosition(domain.ReadPosition{
		ChannelName: domain.GroupChannelName, Participant: "carol", LastReadAt: &first,
	}))
	req.NoError(repository.UpsertReadPosition(domain.ReadPosition{
		ChannelName: domain.GroupChannelName, Participant: "carol", LastReadAt: &second,
	}))

	fetched, err := repository.GetReadPosition(domain.GroupChannelName, "carol")
	req.NoError(err)
	req.Equal(second, *fetched.LastReadAt)
}
