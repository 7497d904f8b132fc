package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/linkmesh/internal/storage"
)

const (
	keyNodeID = "node_id"
)

// GetNodeID returns the persisted node identifier
func (s *Storage) GetNodeID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var nodeID string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		value := bucket.Get([]byte(keyNodeID))
		if value == nil {
			return storage.ErrNodeIDNotSet
		}

		nodeID = string(value)
		return nil
	})

	if err != nil {
		return "", err
	}

	return nodeID, nil
}

// SaveNodeID persists the node identifier
func (s *Storage) SaveNodeID(ctx context.Context, nodeID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if err := bucket.Put([]byte(keyNodeID), []byte(nodeID)); err != nil {
			return fmt.Errorf("failed to save node id: %w", err)
		}

		return nil
	})
}

// NextSequence allocates the next record sequence number
// Значение фиксируется на диске вместе с транзакцией, поэтому не повторяется после рестарта
func (s *Storage) NextSequence(ctx context.Context) (uint64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var seq uint64

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIDSeq)
		if bucket == nil {
			return fmt.Errorf("id sequence bucket not found")
		}

		var err error
		seq, err = bucket.NextSequence()
		return err
	})

	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	return seq, nil
}
