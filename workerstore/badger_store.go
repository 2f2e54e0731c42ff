package workerstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// BadgerStore implements Store using BadgerDB, for production use where
// the worker needs durable, crash-safe state across restarts without
// standing up an external database.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	log.Info().Str("path", path).Msg("worker store initialized")

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			_ = db.RunValueLogGC(0.5)
		}
	}()

	return &BadgerStore{db: db, path: path}, nil
}

const (
	inFlightPrefix  = "inflight:"
	processedPrefix = "processed:"
)

func (bs *BadgerStore) SaveInFlight(requestID string, entry InFlightEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(inFlightPrefix+requestID), data)
	})
}

func (bs *BadgerStore) GetInFlight(requestID string) (InFlightEntry, bool) {
	var entry InFlightEntry
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(inFlightPrefix + requestID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return InFlightEntry{}, false
	}
	return entry, true
}

func (bs *BadgerStore) DeleteInFlight(requestID string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(inFlightPrefix + requestID))
	})
}

func (bs *BadgerStore) AllInFlight() map[string]InFlightEntry {
	out := make(map[string]InFlightEntry)
	bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(inFlightPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(inFlightPrefix):]
			item.Value(func(val []byte) error {
				var entry InFlightEntry
				if err := json.Unmarshal(val, &entry); err == nil {
					out[key] = entry
				}
				return nil
			})
		}
		return nil
	})
	return out
}

func (bs *BadgerStore) MarkProcessed(requestID string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(processedPrefix+requestID), []byte{1})
	})
}

func (bs *BadgerStore) IsProcessed(requestID string) bool {
	err := bs.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(processedPrefix + requestID))
		return err
	})
	return err == nil
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}
