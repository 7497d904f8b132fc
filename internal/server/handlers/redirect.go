package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/registry"
	"github.com/iudanet/linkmesh/pkg/api"
)

// Registry определяет операции реестра, нужные веб-слою
type Registry interface {
	AddRedirect(ctx context.Context, destination, description string) (models.Redirect, error)
	Resolve(ctx context.Context, code string) (string, error)
	ListPage(ctx context.Context, page, pageSize int, search string) ([]models.Redirect, int)
	Collisions() []cache.CodeCollision
	Stats() registry.Stats
}

// RedirectHandler handles redirect requests
type RedirectHandler struct {
	logger   *slog.Logger
	registry Registry
}

// NewRedirectHandler creates a new redirect handler
func NewRedirectHandler(logger *slog.Logger, registry Registry) *RedirectHandler {
	return &RedirectHandler{
		logger:   logger,
		registry: registry,
	}
}

// Create обрабатывает POST /api/v1/redirects
func (h *RedirectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRedirectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.logger.Warn("Failed to decode create request", "error", err)
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.registry.AddRedirect(r.Context(), req.DestinationURL, req.Description)
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, registry.ErrCodeSpaceExhausted):
		h.logger.Error("Failed to allocate short code", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "No free short code, try again")
		return
	case err != nil:
		h.logger.Error("Failed to add redirect", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, r, http.StatusCreated, toAPIRedirect(rec))
}

// List обрабатывает GET /api/v1/redirects?page=&page_size=&search=
func (h *RedirectHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := intParam(query.Get("page"), 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid page parameter")
		return
	}
	pageSize, err := intParam(query.Get("page_size"), registry.DefaultPageSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid page_size parameter")
		return
	}

	records, total := h.registry.ListPage(r.Context(), page, pageSize, query.Get("search"))

	// Нормализация такая же, как в реестре, чтобы ответ отражал фактическую страницу
	page = max(page, 1)
	if pageSize < 1 {
		pageSize = registry.DefaultPageSize
	}
	pageSize = min(pageSize, registry.MaxPageSize)

	resp := api.ListRedirectsResponse{
		Records:  make([]api.Redirect, 0, len(records)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toAPIRedirect(rec))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// Resolve обрабатывает GET /r/{code}
// Неизвестный код дает общий ответ "invalid code" без подробностей
func (h *RedirectHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	dest, err := h.registry.Resolve(r.Context(), code)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "invalid code")
		return
	}
	if err != nil {
		h.logger.Error("Failed to resolve code", "short_code", code, "error", err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// Collisions обрабатывает GET /api/v1/redirects/collisions
func (h *RedirectHandler) Collisions(w http.ResponseWriter, r *http.Request) {
	collisions := h.registry.Collisions()
	if collisions == nil {
		collisions = []cache.CodeCollision{}
	}
	writeJSON(w, r, http.StatusOK, collisions)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func toAPIRedirect(rec models.Redirect) api.Redirect {
	return api.Redirect{
		ID:             rec.ID,
		ShortCode:      rec.ShortCode,
		DestinationURL: rec.DestinationURL,
		Description:    rec.Description,
		CreatedAt:      rec.CreatedAt,
	}
}
