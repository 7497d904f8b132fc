package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/iudanet/linkmesh/internal/peersync"
	"github.com/iudanet/linkmesh/pkg/api"
)

// PeerEngine определяет серверную сторону протокола синхронизации узлов
type PeerEngine interface {
	Digest(ctx context.Context) (*api.DigestResponse, error)
	Fetch(ctx context.Context, ids []string) ([]api.Entry, error)
	Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error)
	Accept(w http.ResponseWriter, r *http.Request)
	Reconcile(ctx context.Context, addr string) (*peersync.SyncResult, error)
}

// PeerHandler handles peer synchronization requests
type PeerHandler struct {
	logger *slog.Logger
	engine PeerEngine
}

// NewPeerHandler creates a new peer handler
func NewPeerHandler(logger *slog.Logger, engine PeerEngine) *PeerHandler {
	return &PeerHandler{
		logger: logger,
		engine: engine,
	}
}

// Digest обрабатывает GET /api/v1/peer/digest
// Возвращает ID и отпечатки всех записей реплики
func (h *PeerHandler) Digest(w http.ResponseWriter, r *http.Request) {
	digest, err := h.engine.Digest(r.Context())
	if err != nil {
		h.logger.Error("Failed to build digest", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, digest)
}

// Fetch обрабатывает POST /api/v1/peer/fetch
func (h *PeerHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req api.FetchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Warn("Failed to decode fetch request", "error", err)
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	entries, err := h.engine.Fetch(r.Context(), req.IDs)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, api.FetchResponse{Entries: entries})
}

// Push обрабатывает POST /api/v1/peer/push
// Принимает записи от узла и сливает их в локальную реплику
func (h *PeerHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req api.PushRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Warn("Failed to decode push request", "error", err)
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NodeID == "" {
		writeError(w, r, http.StatusBadRequest, "node_id is required")
		return
	}

	resp, err := h.engine.Push(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.logger.Info("Push merged",
		"node_id", req.NodeID,
		"received_entries", len(req.Entries),
		"merged", resp.Merged,
		"conflicts", resp.Conflicts)

	writeJSON(w, r, http.StatusOK, resp)
}

// Stream обрабатывает GET /api/v1/peer/stream (websocket)
func (h *PeerHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.engine.Accept(w, r)
}

// Sync обрабатывает POST /api/v1/peers/sync
// Разовая полная сверка с указанным узлом, не дожидаясь фоновой
func (h *PeerHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Warn("Failed to decode sync request", "error", err)
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	res, err := h.engine.Reconcile(r.Context(), req.Address)
	switch {
	case errors.Is(err, peersync.ErrInvalidAddress), errors.Is(err, peersync.ErrSelfPeer):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Warn("Manual sync failed", "address", req.Address, "error", err)
		writeJSON(w, r, http.StatusBadGateway, api.ErrorResponse{Error: "Peer sync failed", Message: err.Error()})
		return
	}

	h.logger.Info("Manual sync completed",
		"address", req.Address,
		"pulled", res.Pulled,
		"pushed", res.Pushed,
		"conflicts", res.Conflicts)

	writeJSON(w, r, http.StatusOK, api.SyncResponse{
		Pulled:    res.Pulled,
		Merged:    res.Merged,
		Conflicts: res.Conflicts,
		Skipped:   res.Skipped,
		Pushed:    res.Pushed,
	})
}

func (h *PeerHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, peersync.ErrBatchTooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	h.logger.Error("Peer request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "Internal server error")
}
