package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/linkmesh/internal/peersync"
	"github.com/iudanet/linkmesh/internal/registry"
	"github.com/iudanet/linkmesh/pkg/api"
)

// StatsProvider источник статистики реестра
type StatsProvider interface {
	Stats() registry.Stats
}

// Connectivity состояние синхронизации с другими узлами
type Connectivity interface {
	CheckConnectivity() error
	Status() peersync.Status
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	stats   StatsProvider
	sync    Connectivity
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, stats StatsProvider, sync Connectivity, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		stats:   stats,
		sync:    sync,
		version: version,
	}
}

// Health обрабатывает GET /api/v1/health
// Узел без связи с соседями продолжает работать, поэтому статус degraded, а не ошибка
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.stats.Stats()
	syncStatus := h.sync.Status()

	resp := api.HealthResponse{
		Status:               "ok",
		Version:              h.version,
		NodeID:               stats.NodeID,
		Records:              stats.Records,
		Collisions:           stats.Collisions,
		Conflicts:            stats.Conflicts,
		CodeLength:           stats.CodeLength,
		CollisionProbability: stats.CollisionProbability,
		FeedDropped:          stats.FeedDropped,
		ConnectedPeers:       syncStatus.Connected,
		KnownPeers:           syncStatus.Known,
	}

	if err := h.sync.CheckConnectivity(); err != nil {
		if !errors.Is(err, peersync.ErrSyncUnavailable) {
			h.logger.Error("Connectivity check failed", "error", err)
		}
		resp.Status = "degraded"
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// Peers обрабатывает GET /api/v1/peers
func (h *HealthHandler) Peers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.sync.Status())
}
