// Package workerstore persists the off-chain worker's crash-recovery
// state: which requests currently have a fulfillment task in flight,
// and which request ids have already been successfully delivered, so a
// restarted worker does not resubmit a proof for a request another
// process instance already fulfilled.
package workerstore

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// InFlightEntry is the persisted record for one in-progress fulfillment
// task.
type InFlightEntry struct {
	QueueAddr   string `json:"queue_addr"`
	EnqueueSlot uint64 `json:"enqueue_slot"`
}

// Store defines the persistence layer the worker needs for crash
// recovery.
type Store interface {
	SaveInFlight(requestID string, entry InFlightEntry) error
	GetInFlight(requestID string) (InFlightEntry, bool)
	DeleteInFlight(requestID string) error
	AllInFlight() map[string]InFlightEntry

	MarkProcessed(requestID string) error
	IsProcessed(requestID string) bool

	Close() error
}

// FileStore implements Store using a local JSON file, for local
// development and tests where standing up BadgerDB isn't warranted.
type FileStore struct {
	filename string
	mu       sync.RWMutex
	data     struct {
		InFlight  map[string]InFlightEntry `json:"in_flight"`
		Processed map[string]bool          `json:"processed"`
	}
}

// NewFileStore creates or loads a file-backed store at filename.
func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{filename: filename}
	fs.data.InFlight = make(map[string]InFlightEntry)
	fs.data.Processed = make(map[string]bool)

	if _, err := os.Stat(filename); err == nil {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fs.data); err != nil {
			log.Warn().Err(err).Msg("failed to decode worker store, starting empty")
		}
	}
	return fs, nil
}

func (fs *FileStore) SaveInFlight(requestID string, entry InFlightEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.InFlight[requestID] = entry
	return fs.flush()
}

func (fs *FileStore) GetInFlight(requestID string) (InFlightEntry, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	e, ok := fs.data.InFlight[requestID]
	return e, ok
}

func (fs *FileStore) DeleteInFlight(requestID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.data.InFlight, requestID)
	return fs.flush()
}

func (fs *FileStore) AllInFlight() map[string]InFlightEntry {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]InFlightEntry, len(fs.data.InFlight))
	for k, v := range fs.data.InFlight {
		out[k] = v
	}
	return out
}

func (fs *FileStore) MarkProcessed(requestID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.data.Processed[requestID] = true
	return fs.flush()
}

func (fs *FileStore) IsProcessed(requestID string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.data.Processed[requestID]
}

func (fs *FileStore) flush() error {
	raw, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.filename + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.filename); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	return fs.flush()
}
