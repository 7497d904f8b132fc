package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/linkmesh/internal/config"
	"github.com/iudanet/linkmesh/internal/crdt"
	"github.com/iudanet/linkmesh/internal/storage"
	"github.com/iudanet/linkmesh/internal/storage/boltdb"
	"github.com/iudanet/linkmesh/internal/storage/sqlite"
)

// OpenStorage открывает хранилище узла выбранным драйвером
func OpenStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	const op = "app.OpenStorage"

	switch cfg.Driver {
	case config.DriverBolt:
		s, err := boltdb.New(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, storage.ErrUnknownDriver, cfg.Driver)
	}
}

// resolveNodeID выбирает идентификатор узла: из конфигурации, затем
// сохраненный в хранилище, иначе создает новый. Результат сохраняется,
// чтобы после перезапуска узел писал под тем же идентификатором.
func resolveNodeID(ctx context.Context, configured string, meta storage.MetadataStorage, logger *slog.Logger) (string, error) {
	const op = "app.resolveNodeID"

	stored, err := meta.GetNodeID(ctx)
	if err != nil && !errors.Is(err, storage.ErrNodeIDNotSet) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	nodeID := configured
	if nodeID == "" {
		nodeID = stored
	}
	if nodeID == "" {
		nodeID = crdt.NewNodeID()
		logger.Info("Generated new node id", "node_id", nodeID)
	}

	if stored != "" && stored != nodeID {
		logger.Warn("Configured node id differs from stored one", "stored", stored, "configured", nodeID)
	}
	if nodeID != stored {
		if err := meta.SaveNodeID(ctx, nodeID); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	return nodeID, nil
}
