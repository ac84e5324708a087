package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-core/domain"
	"chat-core/errors"
)

const channelPrefix = "channel:"

type IChannelRepository interface {
	CreateChannel(channel domain.Channel) error
	GetChannel(name string) (domain.Channel, error)
	ListChannels() ([]domain.Channel, error)
	ListChannelsFor(participant domain.Participant) ([]domain.Channel, error)
	TouchActivity(name string, at time.Time) error
}

type ChannelRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChannelRepository(db *badger.DB, log *slog.Logger) ChannelRepository {
	return ChannelRepository{db: db, log: log}
}

// CreateChannel persists a channel under "channel:{name}".
// The read-before-set inside one transaction enforces name uniqueness.
func (r ChannelRepository) CreateChannel(channel domain.Channel) error {
	key := []byte(channelPrefix + channel.Name)
	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("channel %q: %w", channel.Name, errors.ErrAlreadyExists)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		bytes, err := json.Marshal(channel)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

func (r ChannelRepository) GetChannel(name string) (domain.Channel, error) {
	var channel domain.Channel
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(channelPrefix + name))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("channel %q: %w", name, errors.ErrChannelNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &channel)
		})
	})
	return channel, err
}

// ListChannels returns every channel ordered by name.
// Badger iterates keys lexicographically, so no extra sort is needed.
func (r ChannelRepository) ListChannels() ([]domain.Channel, error) {
	var channels []domain.Channel
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(channelPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var channel domain.Channel
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &channel)
			})
			if err != nil {
				return err
			}
			channels = append(channels, channel)
		}
		return nil
	})
	return channels, err
}

// ListChannelsFor returns the channels containing the participant,
// most recently active first.
func (r ChannelRepository) ListChannelsFor(participant domain.Participant) ([]domain.Channel, error) {
	channels, err := r.ListChannels()
	if err != nil {
		return nil, err
	}
	mine := lo.Filter(channels, func(c domain.Channel, _ int) bool {
		return c.HasParticipant(participant)
	})
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].LastActivityAt.After(mine[j].LastActivityAt)
	})
	return mine, nil
}

// TouchActivity bumps last_activity_at. Concurrent touches are
// last-write-wins; the field is advisory, used only for listing order.
func (r ChannelRepository) TouchActivity(name string, at time.Time) error {
	key := []byte(channelPrefix + name)
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("channel %q: %w", name, errors.ErrChannelNotFound)
		}
		if err != nil {
			return err
		}
		var channel domain.Channel
		if err = item.Value(func(value []byte) error {
			return json.Unmarshal(value, &channel)
		}); err != nil {
			return err
		}
		channel.LastActivityAt = at
		bytes, err := json.Marshal(channel)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}
