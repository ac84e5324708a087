package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	cerrors "chat-core/errors"
	"chat-core/infrastructure/storage"
	"chat-core/moderation"
)

var validate = validator.New()

// SendOptions carries the optional attributes of a message.
// A zero Type defaults to text; Metadata is opaque to the core.
type SendOptions struct {
	Type     domain.MessageType
	Metadata map[string]string
}

// HistoryQuery narrows a history retrieval. Since and Before are
// exclusive bounds; a zero Limit falls back to the configured default.
type HistoryQuery struct {
	Limit          int
	Since          *time.Time
	Before         *time.Time
	IncludeDeleted bool
}

type IChatService interface {
	SendMessage(ctx context.Context, handle string, sender domain.Participant, content string, opts SendOptions) (domain.Message, error)
	BroadcastSystem(ctx context.Context, handle, content string) (domain.Message, error)
	GetMessages(ctx context.Context, handle string, query HistoryQuery) ([]domain.Message, error)
	GetUnread(ctx context.Context, handle string, participant domain.Participant) ([]domain.Message, error)
	UnreadCount(ctx context.Context, handle string, participant domain.Participant) (int, error)
	MarkRead(ctx context.Context, handle string, participant domain.Participant, messageID *uuid.UUID) error
	EditMessage(ctx context.Context, handle string, messageID uuid.UUID, content string) (domain.Message, error)
	DeleteMessage(ctx context.Context, handle string, messageID uuid.UUID) error
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	ListChannelsFor(ctx context.Context, participant domain.Participant) ([]domain.Channel, error)
	Subscribe(subscriberID, handle string, sink contract.EventSink)
	Unsubscribe(subscriberID, handle string)
	SeedChannels(ctx context.Context) error
}

type ChatService struct {
	log          *slog.Logger
	roster       domain.Roster
	naming       domain.Naming
	channels     storage.IChannelRepository
	messages     storage.IMessageRepository
	reads        storage.IReadPositionRepository
	broadcaster  contract.IBroadcaster
	sanitizer    *moderation.Sanitizer
	defaultLimit int
}

// NewChatService wires the orchestration layer. sanitizer may be nil,
// in which case content is stored exactly as given.
func NewChatService(log *slog.Logger, roster domain.Roster,
	channels storage.IChannelRepository, messages storage.IMessageRepository,
	reads storage.IReadPositionRepository, broadcaster contract.IBroadcaster,
	sanitizer *moderation.Sanitizer, defaultLimit int) *ChatService {
	return &ChatService{
		log:          log,
		roster:       roster,
		naming:       domain.NewNaming(roster),
		channels:     channels,
		messages:     messages,
		reads:        reads,
		broadcaster:  broadcaster,
		sanitizer:    sanitizer,
		defaultLimit: defaultLimit,
	}
}

type sendMessageCommand struct {
	Handle  string `validate:"required"`
	Sender  string `validate:"required"`
	Content string `validate:"required"`
}

// SendMessage durably appends a message and fans it out.
// Persistence happens before broadcast, so no subscriber ever observes
// a message that is not durable. The activity timestamp update is
// best-effort and never rolls back the send.
func (s *ChatService) SendMessage(ctx context.Context, handle string, sender domain.Participant,
	content string, opts SendOptions) (domain.Message, error) {
	cmd := sendMessageCommand{Handle: handle, Sender: string(sender), Content: content}
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, cerrors.NewValidationError("command", err.Error())
	}

	name := s.naming.Resolve(handle)
	channel, err := s.channels.GetChannel(name)
	if err != nil {
		return domain.Message{}, err
	}

	msgType := opts.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	metadata := opts.Metadata

	if s.sanitizer != nil && msgType == domain.MessageText {
		masked, found := s.sanitizer.Sanitize(content)
		if len(found) > 0 {
			s.log.Info("Masked forbidden words", "channel", name, "count", len(found))
			content = masked
		}
		if lang := moderation.DetectLanguage(content); lang != "" {
			if metadata == nil {
				metadata = make(map[string]string, 1)
			}
			metadata[moderation.LangMetadataKey] = lang
		}
	}

	message, err := s.messages.InsertMessage(channel, sender, content, msgType, metadata)
	if err != nil {
		return domain.Message{}, err
	}

	if err = s.channels.TouchActivity(name, message.CreatedAt); err != nil {
		s.log.Warn("Failed to update channel activity", "channel", name, "err", err)
	}

	s.broadcaster.Publish(ctx, event.MessagePosted{Message: message})
	return message, nil
}

// BroadcastSystem sends on behalf of the reserved system pseudo-sender.
// The system sender is exempt from membership checks rather than being a
// member of every channel, so stored participant sets stay human-only.
func (s *ChatService) BroadcastSystem(ctx context.Context, handle, content string) (domain.Message, error) {
	return s.SendMessage(ctx, handle, domain.System, content, SendOptions{Type: domain.MessageSystem})
}

// GetMessages returns channel history in ascending creation order.
// With a limit it returns the most recent N, still ascending.
func (s *ChatService) GetMessages(ctx context.Context, handle string, query HistoryQuery) ([]domain.Message, error) {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return s.messages.QueryMessages(name, storage.MessageQuery{
		Since:          query.Since,
		Before:         query.Before,
		Limit:          limit,
		IncludeDeleted: query.IncludeDeleted,
	})
}

// GetUnread returns every non-deleted message strictly newer than the
// participant's watermark; a missing watermark means everything.
func (s *ChatService) GetUnread(ctx context.Context, handle string, participant domain.Participant) ([]domain.Message, error) {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return nil, err
	}
	position, err := s.reads.GetReadPosition(name, participant)
	if err != nil {
		return nil, err
	}
	return s.messages.QueryMessages(name, storage.MessageQuery{Since: position.LastReadAt})
}

// UnreadCount is the counting twin of GetUnread, computed without
// materializing the message window.
func (s *ChatService) UnreadCount(ctx context.Context, handle string, participant domain.Participant) (int, error) {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return 0, err
	}
	position, err := s.reads.GetReadPosition(name, participant)
	if err != nil {
		return 0, err
	}
	return s.messages.CountSince(name, position.LastReadAt)
}

// MarkRead moves the participant's watermark. With a messageID the
// cursor lands on that message's creation time, after verifying the
// message actually belongs to the target channel. Without one the
// cursor is set to now, covering everything currently visible.
func (s *ChatService) MarkRead(ctx context.Context, handle string, participant domain.Participant, messageID *uuid.UUID) error {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return err
	}

	position := domain.ReadPosition{ChannelName: name, Participant: participant}
	if messageID != nil {
		message, err := s.ownedMessage(name, *messageID)
		if err != nil {
			return err
		}
		position.LastReadAt = &message.CreatedAt
		position.LastReadMessageID = messageID
	} else {
		now := time.Now().UTC()
		position.LastReadAt = &now
	}
	return s.reads.UpsertReadPosition(position)
}

// EditMessage replaces content and stamps the edit time; the message
// keeps its place in the channel's order.
func (s *ChatService) EditMessage(ctx context.Context, handle string, messageID uuid.UUID, content string) (domain.Message, error) {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err = s.ownedMessage(name, messageID); err != nil {
		return domain.Message{}, err
	}
	return s.messages.EditMessage(messageID, content, time.Now().UTC())
}

// DeleteMessage soft-deletes: the message disappears from default reads
// but stays durable and retrievable with IncludeDeleted.
func (s *ChatService) DeleteMessage(ctx context.Context, handle string, messageID uuid.UUID) error {
	name, err := s.resolveExisting(handle)
	if err != nil {
		return err
	}
	if _, err = s.ownedMessage(name, messageID); err != nil {
		return err
	}
	return s.messages.SoftDeleteMessage(messageID)
}

func (s *ChatService) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	return s.channels.ListChannels()
}

func (s *ChatService) ListChannelsFor(ctx context.Context, participant domain.Participant) ([]domain.Channel, error) {
	if participant != domain.System && !s.roster.Contains(participant) {
		return nil, fmt.Errorf("%q: %w", participant, cerrors.ErrInvalidParticipant)
	}
	return s.channels.ListChannelsFor(participant)
}

func (s *ChatService) Subscribe(subscriberID, handle string, sink contract.EventSink) {
	s.broadcaster.Subscribe(subscriberID, s.naming.Resolve(handle), sink)
}

func (s *ChatService) Unsubscribe(subscriberID, handle string) {
	s.broadcaster.Unsubscribe(subscriberID, s.naming.Resolve(handle))
}

// SeedChannels creates the fixed channel shapes: one group channel over
// the whole roster plus one DM per unordered pair. Already existing
// channels are left untouched, so seeding is idempotent.
func (s *ChatService) SeedChannels(ctx context.Context) error {
	seeded := []domain.Channel{{
		Name:         domain.GroupChannelName,
		Type:         domain.ChannelGroup,
		Participants: s.roster.Members(),
	}}
	for _, pair := range s.roster.Pairs() {
		seeded = append(seeded, domain.Channel{
			Name:         domain.DMChannelName(pair[0], pair[1]),
			Type:         domain.ChannelDM,
			Participants: []domain.Participant{pair[0], pair[1]},
		})
	}

	for _, channel := range seeded {
		err := s.channels.CreateChannel(channel)
		if errors.Is(err, cerrors.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return err
		}
		s.log.Info("Seeded channel", "name", channel.Name, "type", channel.Type)
	}
	return nil
}

func (s *ChatService) resolveExisting(handle string) (string, error) {
	name := s.naming.Resolve(handle)
	if _, err := s.channels.GetChannel(name); err != nil {
		return "", err
	}
	return name, nil
}

// ownedMessage loads a message and verifies it belongs to the channel.
// A foreign id is rejected instead of silently setting a wrong cursor.
func (s *ChatService) ownedMessage(channelName string, id uuid.UUID) (domain.Message, error) {
	message, err := s.messages.GetMessage(id)
	if err != nil {
		return domain.Message{}, err
	}
	if message.ChannelName != channelName {
		return domain.Message{}, fmt.Errorf("message %s in %q: %w", id, channelName, cerrors.ErrMessageNotInChannel)
	}
	return message, nil
}
