package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/infrastructure/storage"
	"chat-core/moderation"
	"chat-core/runtime"
	"chat-core/services"
	"chat-core/sink"
)

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	defer db.Close()

	log := slog.Default()
	roster, err := domain.NewRoster("alice", "bob", "carol")
	req.NoError(err)

	sanitizer, err := moderation.NewSanitizer([]string{"token"}, '*')
	req.NoError(err)

	broadcaster := runtime.NewBroadcaster(log, time.Second)
	service := services.NewChatService(log, roster,
		storage.NewChannelRepository(db, log),
		storage.NewMessageRepository(db, log, 50_000),
		storage.NewReadPositionRepository(db, log),
		broadcaster, sanitizer, 50)

	// 1. Seed the fixed channel shapes
	req.NoError(service.SeedChannels(ctx))

	// 2. Alice goes live on the group channel
	aliceSink := sink.NewBuffered(log, cfg.SinkBuffer)
	service.Subscribe("alice", "group", aliceSink)
	defer service.Unsubscribe("alice", "group")

	// 3. Bob posts; the message is durable and fanned out
	sent, err := service.SendMessage(ctx, "group", "bob", "ship it", services.SendOptions{})
	req.NoError(err)

	select {
	case e := <-aliceSink.Events():
		posted, ok := e.(event.MessagePosted)
		req.True(ok)
		req.Equal(sent.ID, posted.Message.ID)
		if cfg.DebugEvents {
			t.Logf("event: %+v", posted)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a fanned-out event")
	}

	// 4. Carol was offline: durability covers her via unread tracking
	count, err := service.UnreadCount(ctx, "group", "carol")
	req.NoError(err)
	req.Equal(1, count)

	unread, err := service.GetUnread(ctx, "group", "carol")
	req.NoError(err)
	req.Len(unread, 1)
	req.Equal("ship it", unread[0].Content)

	req.NoError(service.MarkRead(ctx, "group", "carol", nil))
	count, err = service.UnreadCount(ctx, "group", "carol")
	req.NoError(err)
	req.Equal(0, count)

	// 5. The sanitizer masks configured words on the way in
	_, err = service.SendMessage(ctx, "bob-alice", "alice", "the token is 12345", services.SendOptions{})
	req.NoError(err)

	dm, err := service.GetMessages(ctx, "alice-bob", services.HistoryQuery{})
	req.NoError(err)
	req.Len(dm, 1)
	req.Equal("the ***** is 12345", dm[0].Content)
}
