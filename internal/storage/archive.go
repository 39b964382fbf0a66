// Package storage keeps a local transcript of chat entries in BadgerDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
)

var ErrRoomRequired = errors.New("room id is required")

const defaultHistoryLimit = 100

type Archive struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the archive directory at path.
func Open(path string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Archive{db: db, log: log}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// messageKey is "msg:{room}:{order}:{id}". The order part is the sequence number, or the creation
// time in nanoseconds when the backend sent none, zero padded to 19 digits so keys sort numerically.
func messageKey(entry meeting.ChatEntry, id string) []byte {
	order := entry.Sequence
	if order <= 0 && !entry.CreatedAt.IsZero() {
		order = entry.CreatedAt.UnixNano()
	}
	return []byte(fmt.Sprintf("%s%019d:%s", roomPrefix(entry.RoomID), order, id))
}

func roomPrefix(room string) string {
	return "msg:" + url.QueryEscape(room) + ":"
}

func indexKey(room, id string) []byte {
	return []byte("idx:" + url.QueryEscape(room) + ":" + id)
}

// StoreEntry inserts or replaces an entry. Entries are matched by room and id, so a later
// translation or redelivery overwrites the earlier copy even if its ordering key moved.
func (a *Archive) StoreEntry(entry meeting.ChatEntry) error {
	if entry.RoomID == "" {
		return ErrRoomRequired
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.ID, err)
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	key := messageKey(entry, id)

	return a.db.Update(func(txn *badger.Txn) error {
		if entry.ID != "" {
			idx := indexKey(entry.RoomID, entry.ID)
			item, err := txn.Get(idx)
			switch {
			case err == nil:
				previous, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if string(previous) != string(key) {
					if err := txn.Delete(previous); err != nil {
						return err
					}
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(idx, key); err != nil {
				return err
			}
		}
		return txn.Set(key, value)
	})
}

// History returns up to limit of the most recent entries of a room, oldest first.
func (a *Archive) History(room string, limit int) ([]meeting.ChatEntry, error) {
	if room == "" {
		return nil, ErrRoomRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var entries []meeting.ChatEntry
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix(room))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(entries) == limit {
				a.log.Debug("history limit reached", "room", room, "limit", limit)
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var entry meeting.ChatEntry
				if err := json.Unmarshal(value, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history of %s: %w", room, err)
	}
	return lo.Reverse(entries), nil
}
