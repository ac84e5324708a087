package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	cerrors "chat-core/errors"
	"chat-core/infrastructure/storage"
	"chat-core/mocks"
	"chat-core/moderation"
	"chat-core/runtime"
	"chat-core/sink"
)

const testMaxContentLength = 100

func newService(t *testing.T, broadcaster contract.IBroadcaster, sanitizer *moderation.Sanitizer) *ChatService {
	t.Helper()
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	roster, err := domain.NewRoster("alice", "bob", "carol")
	require.NoError(t, err)

	log := slog.Default()
	service := NewChatService(log, roster,
		storage.NewChannelRepository(db, log),
		storage.NewMessageRepository(db, log, testMaxContentLength),
		storage.NewReadPositionRepository(db, log),
		broadcaster, sanitizer, 50)
	require.NoError(t, service.SeedChannels(context.Background()))
	return service
}

func newLiveService(t *testing.T) *ChatService {
	t.Helper()
	return newService(t, runtime.NewBroadcaster(slog.Default(), time.Second), nil)
}

func Test_Seed_Creates_Fixed_Shapes_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	// Seeding again must leave everything untouched
	req.NoError(service.SeedChannels(ctx))

	channels, err := service.ListChannels(ctx)
	req.NoError(err)

	// One group + one DM per unordered pair of {alice, bob, carol}
	names := lo.Map(channels, func(c domain.Channel, _ int) string { return c.Name })
	req.Equal([]string{"alice-bob", "alice-carol", "bob-carol", "group"}, names)
}

func Test_Send_And_Get_Messages_Roundtrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	sent, err := service.SendMessage(ctx, "group", "alice", "hello all", SendOptions{
		Metadata: map[string]string{"client": "cli"},
	})
	req.NoError(err)
	req.Equal(domain.MessageText, sent.Type)

	messages, err := service.GetMessages(ctx, "group", HistoryQuery{})
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("alice", string(messages[0].Sender))
	req.Equal("hello all", messages[0].Content)
	req.Equal("cli", messages[0].Metadata["client"])
}

func Test_Send_To_Unknown_Channel(t *testing.T) {
	req := require.New(t)
	service := newLiveService(t)

	_, err := service.SendMessage(context.Background(), "nowhere", "alice", "hi", SendOptions{})
	req.ErrorIs(err, cerrors.ErrChannelNotFound)
}

func Test_Send_By_Stranger_Persists_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	_, err := service.SendMessage(ctx, "alice-bob", "carol", "let me in", SendOptions{})
	req.ErrorIs(err, cerrors.ErrSenderNotInChannel)

	messages, err := service.GetMessages(ctx, "alice-bob", HistoryQuery{IncludeDeleted: true})
	req.NoError(err)
	req.Empty(messages)
}

func Test_Send_Content_Boundaries(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	var validationErr cerrors.ValidationError
	_, err := service.SendMessage(ctx, "group", "alice", "", SendOptions{})
	req.ErrorAs(err, &validationErr)

	_, err = service.SendMessage(ctx, "group", "alice", strings.Repeat("x", testMaxContentLength), SendOptions{})
	req.NoError(err)

	_, err = service.SendMessage(ctx, "group", "alice", strings.Repeat("x", testMaxContentLength+1), SendOptions{})
	req.ErrorAs(err, &validationErr)
}

func Test_Unread_Lifecycle_Is_Per_Participant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	// Given alice posted in the group channel
	_, err := service.SendMessage(ctx, "group", "alice", "hi", SendOptions{})
	req.NoError(err)

	// Then bob and carol both have one unread message
	count, err := service.UnreadCount(ctx, "group", "bob")
	req.NoError(err)
	req.Equal(1, count)

	// When bob marks the channel read
	req.NoError(service.MarkRead(ctx, "group", "bob", nil))

	// Then bob is caught up but carol is not
	count, err = service.UnreadCount(ctx, "group", "bob")
	req.NoError(err)
	req.Equal(0, count)

	count, err = service.UnreadCount(ctx, "group", "carol")
	req.NoError(err)
	req.Equal(1, count)
}

func Test_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	_, err := service.SendMessage(ctx, "group", "alice", "hi", SendOptions{})
	req.NoError(err)

	req.NoError(service.MarkRead(ctx, "group", "bob", nil))
	req.NoError(service.MarkRead(ctx, "group", "bob", nil))

	count, err := service.UnreadCount(ctx, "group", "bob")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_MarkRead_With_Message_Id_Sets_Watermark(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	first, err := service.SendMessage(ctx, "group", "alice", "first", SendOptions{})
	req.NoError(err)
	_, err = service.SendMessage(ctx, "group", "alice", "second", SendOptions{})
	req.NoError(err)

	// Reading up to the first message leaves the second unread
	req.NoError(service.MarkRead(ctx, "group", "bob", &first.ID))

	unread, err := service.GetUnread(ctx, "group", "bob")
	req.NoError(err)
	req.Len(unread, 1)
	req.Equal("second", unread[0].Content)
}

func Test_MarkRead_Rejects_Foreign_Message_Id(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	groupMessage, err := service.SendMessage(ctx, "group", "alice", "hi", SendOptions{})
	req.NoError(err)

	// A cursor from another channel must not silently land
	err = service.MarkRead(ctx, "alice-bob", "bob", &groupMessage.ID)
	req.ErrorIs(err, cerrors.ErrMessageNotInChannel)

	missing := uuid.New()
	err = service.MarkRead(ctx, "group", "bob", &missing)
	req.ErrorIs(err, cerrors.ErrMessageNotFound)
}

func Test_DM_Handles_Resolve_To_One_Channel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	// Sending via one handle order
	_, err := service.SendMessage(ctx, "bob-alice", "alice", "hey bob", SendOptions{})
	req.NoError(err)

	// Reading via the other order sees the same message
	messages, err := service.GetMessages(ctx, "alice-bob", HistoryQuery{})
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("hey bob", messages[0].Content)
}

func Test_BroadcastSystem_Bypasses_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	message, err := service.BroadcastSystem(ctx, "alice-bob", "maintenance at noon")
	req.NoError(err)
	req.Equal(domain.System, message.Sender)
	req.Equal(domain.MessageSystem, message.Type)

	// The pseudo-sender is not a member, so it owns no channel listing
	channels, err := service.ListChannelsFor(ctx, domain.System)
	req.NoError(err)
	req.Empty(channels)
}

func Test_Delete_Then_Edit_Visibility(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	message, err := service.SendMessage(ctx, "group", "alice", "typo", SendOptions{})
	req.NoError(err)

	edited, err := service.EditMessage(ctx, "group", message.ID, "fixed")
	req.NoError(err)
	req.Equal("fixed", edited.Content)
	req.NotNil(edited.EditedAt)

	req.NoError(service.DeleteMessage(ctx, "group", message.ID))

	visible, err := service.GetMessages(ctx, "group", HistoryQuery{})
	req.NoError(err)
	req.Empty(visible)

	all, err := service.GetMessages(ctx, "group", HistoryQuery{IncludeDeleted: true})
	req.NoError(err)
	req.Len(all, 1)
	req.True(all[0].Deleted)
}

func Test_Deleted_Messages_Are_Not_Unread(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	message, err := service.SendMessage(ctx, "group", "alice", "oops", SendOptions{})
	req.NoError(err)
	req.NoError(service.DeleteMessage(ctx, "group", message.ID))

	count, err := service.UnreadCount(ctx, "group", "bob")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_Send_Publishes_After_Persist(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	service := newService(t, broadcaster, nil)

	var published event.DomainEvent
	broadcaster.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e event.DomainEvent) {
			published = e

			// At publish time the message must already be durable
			messages, err := service.GetMessages(ctx, "group", HistoryQuery{})
			req.NoError(err)
			req.Len(messages, 1)
		})

	sent, err := service.SendMessage(ctx, "group", "alice", "hi", SendOptions{})
	req.NoError(err)

	postedEvent, ok := published.(event.MessagePosted)
	req.True(ok)
	req.Equal(sent.ID, postedEvent.Message.ID)
}

func Test_Failed_Send_Publishes_Nothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	service := newService(t, broadcaster, nil)

	// No Publish expectation: any call would fail the test
	_, err := service.SendMessage(context.Background(), "alice-bob", "carol", "nope", SendOptions{})
	req.ErrorIs(err, cerrors.ErrSenderNotInChannel)
}

func Test_Send_With_Sanitizer_Masks_And_Annotates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	sanitizer, err := moderation.NewSanitizer([]string{"password"}, '*')
	req.NoError(err)
	service := newService(t, runtime.NewBroadcaster(slog.Default(), time.Second), sanitizer)

	_, err = service.SendMessage(ctx, "group", "alice", "the password is hunter2 and nobody should know", SendOptions{})
	req.NoError(err)

	messages, err := service.GetMessages(ctx, "group", HistoryQuery{})
	req.NoError(err)
	req.Len(messages, 1)
	req.NotContains(messages[0].Content, "password")
	req.Equal("en", messages[0].Metadata[moderation.LangMetadataKey])
}

func Test_Concurrent_Senders_Lose_Nothing_And_Stay_Ordered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	const perSender = 20
	senders := []domain.Participant{"alice", "bob", "carol"}
	total := len(senders) * perSender

	// Given all senders posting to the same channel at once
	var wg sync.WaitGroup
	sendErrs := make(chan error, total)
	for _, sender := range senders {
		wg.Add(1)
		go func(sender domain.Participant) {
			defer wg.Done()
			for n := 0; n < perSender; n++ {
				_, err := service.SendMessage(ctx, "group", sender,
					fmt.Sprintf("%s says %d", sender, n), SendOptions{})
				if err != nil {
					sendErrs <- err
				}
			}
		}(sender)
	}
	wg.Wait()
	close(sendErrs)
	for err := range sendErrs {
		req.NoError(err)
	}

	// Then nothing was lost and history is in non-decreasing creation order
	first, err := service.GetMessages(ctx, "group", HistoryQuery{Limit: total})
	req.NoError(err)
	req.Len(first, total)
	for i := 1; i < len(first); i++ {
		req.False(first[i].CreatedAt.Before(first[i-1].CreatedAt))
	}

	// And a second read observes the exact same sequence
	second, err := service.GetMessages(ctx, "group", HistoryQuery{Limit: total})
	req.NoError(err)
	req.Equal(messageIDs(first), messageIDs(second))
}

func Test_Concurrent_MarkRead_Collapses_To_One_Cursor(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	_, err := service.SendMessage(ctx, "group", "alice", "hello", SendOptions{})
	req.NoError(err)

	// Given several racing first creations of bob's cursor
	var wg sync.WaitGroup
	markErrs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			markErrs <- service.MarkRead(ctx, "group", "bob", nil)
		}()
	}
	wg.Wait()
	close(markErrs)
	for err := range markErrs {
		req.NoError(err)
	}

	// Then they collapsed onto a single row covering the message
	count, err := service.UnreadCount(ctx, "group", "bob")
	req.NoError(err)
	req.Equal(0, count)
}

func messageIDs(messages []domain.Message) []uuid.UUID {
	return lo.Map(messages, func(m domain.Message, _ int) uuid.UUID { return m.ID })
}

func Test_Subscribe_Receives_Live_Messages_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	// Given a message sent before anyone was listening
	_, err := service.SendMessage(ctx, "group", "alice", "before", SendOptions{})
	req.NoError(err)

	timeline := sink.NewTimeline("bob")
	service.Subscribe("bob", "group", timeline)

	_, err = service.SendMessage(ctx, "group", "alice", "during", SendOptions{})
	req.NoError(err)

	service.Unsubscribe("bob", "group")
	_, err = service.SendMessage(ctx, "group", "alice", "after", SendOptions{})
	req.NoError(err)

	// Only the message published while subscribed was delivered live;
	// the rest stays reachable through the store
	received := timeline.Messages()
	req.Len(received, 1)
	req.Equal("during", received[0].Content)
}

func Test_Activity_Ordering_For_Participant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	service := newLiveService(t)

	_, err := service.SendMessage(ctx, "group", "alice", "first stop", SendOptions{})
	req.NoError(err)
	_, err = service.SendMessage(ctx, "alice-bob", "bob", "then here", SendOptions{})
	req.NoError(err)

	channels, err := service.ListChannelsFor(ctx, "alice")
	req.NoError(err)
	req.Len(channels, 3)
	req.Equal("alice-bob", channels[0].Name)
	req.Equal(domain.GroupChannelName, channels[1].Name)
}
