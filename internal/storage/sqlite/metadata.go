package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/linkmesh/internal/storage"
)

const keyNodeID = "node_id"

// GetNodeID returns the persisted node identifier
func (s *Storage) GetNodeID(ctx context.Context) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	var nodeID string
	err = db.QueryRowContext(ctx, `SELECT value FROM peer_meta WHERE key = ?`, keyNodeID).Scan(&nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNodeIDNotSet
		}
		return "", fmt.Errorf("failed to get node id: %w", err)
	}

	return nodeID, nil
}

// SaveNodeID persists the node identifier
func (s *Storage) SaveNodeID(ctx context.Context, nodeID string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO peer_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := db.ExecContext(ctx, query, keyNodeID, nodeID); err != nil {
		return fmt.Errorf("failed to save node id: %w", err)
	}

	return nil
}

// NextSequence allocates the next record sequence number
func (s *Storage) NextSequence(ctx context.Context) (uint64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO peer_sequence (id, value) VALUES (1, 1)
		ON CONFLICT(id) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var seq int64
	if err := db.QueryRowContext(ctx, query).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	return uint64(seq), nil
}
