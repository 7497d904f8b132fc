package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/storage"
)

// SaveEntry stores or replaces a replica entry in BoltDB
func (s *Storage) SaveEntry(ctx context.Context, entry *models.ReplicaEntry) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal replica entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		order := tx.Bucket(bucketOrder)
		if entries == nil || order == nil {
			return fmt.Errorf("entries bucket not found")
		}

		key := []byte(entry.ID)

		// Новый ID получает позицию в порядке вставки, замена ее сохраняет
		if entries.Get(key) == nil {
			seq, err := order.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate order sequence: %w", err)
			}
			if err := order.Put(seqKey(seq), key); err != nil {
				return fmt.Errorf("failed to save order: %w", err)
			}
		}

		if err := entries.Put(key, data); err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetEntry retrieves a replica entry by ID
func (s *Storage) GetEntry(ctx context.Context, id string) (*models.ReplicaEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entry *models.ReplicaEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		if bucket == nil {
			return storage.ErrEntryNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrEntryNotFound
		}

		entry = &models.ReplicaEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// GetAllEntries returns all entries in first-save order
func (s *Storage) GetAllEntries(ctx context.Context) ([]*models.ReplicaEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entries []*models.ReplicaEntry

	// Одна read-транзакция дает согласованный снимок
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		order := tx.Bucket(bucketOrder)
		if bucket == nil || order == nil {
			return nil
		}

		entries = make([]*models.ReplicaEntry, 0, bucket.Stats().KeyN)

		return order.ForEach(func(_, id []byte) error {
			data := bucket.Get(id)
			if data == nil {
				return fmt.Errorf("order references missing entry %q", id)
			}

			var entry models.ReplicaEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get all entries: %w", err)
	}

	return entries, nil
}

// GetMaxTimestamp returns the maximum timestamp in the local store
func (s *Storage) GetMaxTimestamp(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var maxTimestamp int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var entry models.ReplicaEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}

			if entry.Meta.Timestamp > maxTimestamp {
				maxTimestamp = entry.Meta.Timestamp
			}

			return nil
		})
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get max timestamp: %w", err)
	}

	return maxTimestamp, nil
}

// seqKey кодирует номер в big-endian, чтобы курсор шел в порядке вставки
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
