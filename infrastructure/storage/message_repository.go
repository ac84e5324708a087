package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-core/domain"
	"chat-core/errors"
)

const (
	msgPrefix   = "msg:"
	msgIDPrefix = "msgid:"
	// tsDigits pads UnixNano to fixed width so lexicographic key order
	// matches chronological order.
	tsDigits = 19
)

type MessageQuery struct {
	// Since and Before are exclusive bounds on creation time.
	Since  *time.Time
	Before *time.Time
	// Limit caps the most recent N matching messages; the result is
	// still returned in ascending order. Zero means no cap.
	Limit          int
	IncludeDeleted bool
}

type IMessageRepository interface {
	InsertMessage(channel domain.Channel, sender domain.Participant, content string,
		msgType domain.MessageType, metadata map[string]string) (domain.Message, error)
	QueryMessages(channelName string, query MessageQuery) ([]domain.Message, error)
	CountSince(channelName string, since *time.Time) (int, error)
	GetMessage(id uuid.UUID) (domain.Message, error)
	EditMessage(id uuid.UUID, content string, at time.Time) (domain.Message, error)
	SoftDeleteMessage(id uuid.UUID) error
}

type MessageRepository struct {
	db               *badger.DB
	log              *slog.Logger
	maxContentLength int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, maxContentLength int) MessageRepository {
	return MessageRepository{db: db, log: log, maxContentLength: maxContentLength}
}

// messageKey formats "msg:{channel}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep ordering stable when two messages land on the same nanosecond,
//     using the UUID as tie-breaker.
func messageKey(channelName string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%0*d:%s", msgPrefix, channelName, tsDigits, at.UnixNano(), id))
}

// InsertMessage validates and durably appends one message.
// The creation timestamp is assigned here, at the moment of append.
// The message row and its id index are written in a single transaction,
// so concurrent appends to the same channel lose nothing.
func (r MessageRepository) InsertMessage(channel domain.Channel, sender domain.Participant,
	content string, msgType domain.MessageType, metadata map[string]string) (domain.Message, error) {
	if sender != domain.System && !channel.HasParticipant(sender) {
		return domain.Message{}, fmt.Errorf("sender %q in %q: %w", sender, channel.Name, errors.ErrSenderNotInChannel)
	}
	if len(content) == 0 {
		return domain.Message{}, errors.NewValidationError("content", "must not be empty")
	}
	if len(content) > r.maxContentLength {
		return domain.Message{}, errors.NewValidationError("content",
			fmt.Sprintf("exceeds maximum length of %d", r.maxContentLength))
	}
	if !msgType.Valid() {
		return domain.Message{}, errors.NewValidationError("type", fmt.Sprintf("unknown message type %q", msgType))
	}

	message := domain.Message{
		ID:          uuid.New(),
		ChannelName: channel.Name,
		Sender:      sender,
		Content:     content,
		Type:        msgType,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	bytes, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, err
	}

	key := messageKey(channel.Name, message.CreatedAt, message.ID)
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set([]byte(msgIDPrefix+message.ID.String()), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// QueryMessages scans the channel prefix in reverse, newest first, so the
// limit naturally keeps the most recent matches. The collected window is
// reversed before returning, giving callers ascending creation order.
func (r MessageRepository) QueryMessages(channelName string, query MessageQuery) ([]domain.Message, error) {
	var messages []domain.Message
	prefixStr := msgPrefix + channelName + ":"
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the largest possible timestamp for this channel.
		seekKey := append([]byte{}, prefix...)
		seekKey = append(seekKey, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if query.Limit > 0 && len(messages) == query.Limit {
				break
			}
			item := it.Item()
			ts, err := timestampOf(item.Key(), len(prefixStr))
			if err != nil {
				r.log.Warn("Skipping malformed message key", "key", string(item.Key()))
				continue
			}
			if query.Before != nil && ts >= query.Before.UnixNano() {
				continue
			}
			if query.Since != nil && ts <= query.Since.UnixNano() {
				// Reverse scan: everything further is older still.
				break
			}
			var message domain.Message
			if err = item.Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			}); err != nil {
				return err
			}
			if message.Deleted && !query.IncludeDeleted {
				continue
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

// CountSince counts non-deleted messages strictly newer than since
// without materializing the window. A nil since counts everything.
func (r MessageRepository) CountSince(channelName string, since *time.Time) (int, error) {
	count := 0
	prefixStr := msgPrefix + channelName + ":"
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if since != nil {
			// Exclusive bound: seek just past the watermark timestamp.
			seekKey = []byte(fmt.Sprintf("%s%0*d:", prefixStr, tsDigits, since.UnixNano()+1))
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			}); err != nil {
				return err
			}
			if !message.Deleted {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := r.primaryKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &message)
		})
	})
	return message, err
}

// EditMessage replaces the content and stamps EditedAt.
// The row keeps its key, so the creation-order slot is preserved.
func (r MessageRepository) EditMessage(id uuid.UUID, content string, at time.Time) (domain.Message, error) {
	if len(content) == 0 {
		return domain.Message{}, errors.NewValidationError("content", "must not be empty")
	}
	if len(content) > r.maxContentLength {
		return domain.Message{}, errors.NewValidationError("content",
			fmt.Sprintf("exceeds maximum length of %d", r.maxContentLength))
	}
	var message domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		return r.mutate(txn, id, func(m *domain.Message) {
			m.Content = content
			m.EditedAt = &at
			message = *m
		})
	})
	return message, err
}

// SoftDeleteMessage only raises the deleted flag; the row stays in place.
func (r MessageRepository) SoftDeleteMessage(id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return r.mutate(txn, id, func(m *domain.Message) {
			m.Deleted = true
		})
	})
}

func (r MessageRepository) mutate(txn *badger.Txn, id uuid.UUID, apply func(*domain.Message)) error {
	key, err := r.primaryKey(txn, id)
	if err != nil {
		return err
	}
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	var message domain.Message
	if err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &message)
	}); err != nil {
		return err
	}
	apply(&message)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

func (r MessageRepository) primaryKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get([]byte(msgIDPrefix + id.String()))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("message %s: %w", id, errors.ErrMessageNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func timestampOf(key []byte, prefixLen int) (int64, error) {
	if len(key) < prefixLen+tsDigits {
		return 0, fmt.Errorf("key too short")
	}
	return strconv.ParseInt(string(key[prefixLen:prefixLen+tsDigits]), 10, 64)
}
