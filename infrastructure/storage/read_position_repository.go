package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"chat-core/domain"
)

const readPrefix = "read:"

type IReadPositionRepository interface {
	GetReadPosition(channelName string, participant domain.Participant) (domain.ReadPosition, error)
	UpsertReadPosition(position domain.ReadPosition) error
}

type ReadPositionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewReadPositionRepository(db *badger.DB, log *slog.Logger) ReadPositionRepository {
	return ReadPositionRepository{db: db, log: log}
}

func readKey(channelName string, participant domain.Participant) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", readPrefix, channelName, participant))
}

// GetReadPosition lazily materializes the cursor: absence is not an
// error, it means everything is unread (nil LastReadAt).
func (r ReadPositionRepository) GetReadPosition(channelName string, participant domain.Participant) (domain.ReadPosition, error) {
	position := domain.ReadPosition{ChannelName: channelName, Participant: participant}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(readKey(channelName, participant))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &position)
		})
	})
	return position, err
}

// UpsertReadPosition writes the single row for (channel, participant).
// The fixed key makes concurrent first-creation races collapse onto one
// row, with the latest write winning.
func (r ReadPositionRepository) UpsertReadPosition(position domain.ReadPosition) error {
	bytes, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(readKey(position.ChannelName, position.Participant), bytes)
	})
}
