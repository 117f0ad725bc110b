package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const metaRunKey = "run"

// RunMetadata describes the import run that produced the store.
type RunMetadata struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	// Complete is false for a run that was aborted; Error holds the cause.
	Complete      bool      `json:"complete"`
	Error         string    `json:"error,omitempty"`
	Nodes         int64     `json:"nodes"`
	Relationships int64     `json:"relationships"`
	// NodesByLabel is keyed by each node's first label.
	NodesByLabel map[string]int64 `json:"nodesByLabel"`
	EdgesByType  map[string]int64 `json:"edgesByType"`
}

// Duration is the wall time of the run.
func (m *RunMetadata) Duration() time.Duration {
	return m.FinishedAt.Sub(m.StartedAt)
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, []byte(name)...)
}

func (b *BadgerEngine) saveMetadata(meta RunMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(metaRunKey), data)
	})
}

// Metadata returns the metadata of the finalized or aborted run, or
// ErrNotFound when the load never reached either.
func (b *BadgerEngine) Metadata() (*RunMetadata, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var meta RunMetadata
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(metaRunKey))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
