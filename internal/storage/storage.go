package storage

import (
	"context"

	"github.com/iudanet/linkmesh/internal/models"
)

//go:generate moq -out storage_mock.go . Storage

// ReplicaStorage defines the durable substrate the replicated map sits on
type ReplicaStorage interface {
	// SaveEntry stores an entry under its ID, replacing any previous value
	// The first save of an ID fixes its position in GetAllEntries order
	SaveEntry(ctx context.Context, entry *models.ReplicaEntry) error

	// GetEntry retrieves an entry by ID
	// Returns ErrEntryNotFound if entry doesn't exist
	GetEntry(ctx context.Context, id string) (*models.ReplicaEntry, error)

	// GetAllEntries returns a consistent snapshot of all entries
	// in the order their IDs were first saved
	GetAllEntries(ctx context.Context) ([]*models.ReplicaEntry, error)

	// GetMaxTimestamp returns the maximum Lamport timestamp in the store
	// Used to restore the clock after restart
	GetMaxTimestamp(ctx context.Context) (int64, error)
}

// MetadataStorage defines interface for peer-local metadata
type MetadataStorage interface {
	// GetNodeID returns the persisted node identifier
	// Returns ErrNodeIDNotSet if it was never saved
	GetNodeID(ctx context.Context) (string, error)

	// SaveNodeID persists the node identifier
	SaveNodeID(ctx context.Context, nodeID string) error

	// NextSequence durably allocates the next record sequence number (starting at 1)
	NextSequence(ctx context.Context) (uint64, error)
}

// Storage is a complete peer store
type Storage interface {
	ReplicaStorage
	MetadataStorage
	Close() error
}
