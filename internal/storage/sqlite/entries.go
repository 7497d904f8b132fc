package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/storage"
)

// SaveEntry stores or replaces a replica entry
// Upsert keeps the seq of an existing row, so insertion order is stable
func (s *Storage) SaveEntry(ctx context.Context, entry *models.ReplicaEntry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO redirects (
			id, short_code, destination_url, description,
			created_at, node_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			short_code = excluded.short_code,
			destination_url = excluded.destination_url,
			description = excluded.description,
			created_at = excluded.created_at,
			node_id = excluded.node_id,
			timestamp = excluded.timestamp
	`

	_, err = db.ExecContext(ctx, query,
		entry.ID,
		entry.ShortCode,
		entry.DestinationURL,
		entry.Description,
		entry.CreatedAt.UnixNano(),
		entry.Meta.NodeID,
		entry.Meta.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}

	return nil
}

// GetEntry retrieves a single entry by ID
func (s *Storage) GetEntry(ctx context.Context, id string) (*models.ReplicaEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, short_code, destination_url, description,
		       created_at, node_id, timestamp
		FROM redirects
		WHERE id = ?
	`

	entry, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

// GetAllEntries returns all entries ordered by first insertion
func (s *Storage) GetAllEntries(ctx context.Context) ([]*models.ReplicaEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, short_code, destination_url, description,
		       created_at, node_id, timestamp
		FROM redirects
		ORDER BY seq
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*models.ReplicaEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// GetMaxTimestamp returns the maximum Lamport timestamp in the store
func (s *Storage) GetMaxTimestamp(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var maxTimestamp int64
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(timestamp), 0) FROM redirects`).Scan(&maxTimestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to get max timestamp: %w", err)
	}

	return maxTimestamp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.ReplicaEntry, error) {
	entry := &models.ReplicaEntry{}
	var createdAt int64

	err := row.Scan(
		&entry.ID,
		&entry.ShortCode,
		&entry.DestinationURL,
		&entry.Description,
		&createdAt,
		&entry.Meta.NodeID,
		&entry.Meta.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return entry, nil
}
