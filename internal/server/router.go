// Package server собирает HTTP поверхность узла: API редиректов,
// резолв коротких кодов и протокол синхронизации узлов.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/linkmesh/internal/server/handlers"
	"github.com/iudanet/linkmesh/internal/server/middleware"
)

// PeerSync серверная сторона синхронизации и ее состояние
type PeerSync interface {
	handlers.PeerEngine
	handlers.Connectivity
}

// NewRouter создает chi роутер со всеми маршрутами узла
func NewRouter(logger *slog.Logger, registry handlers.Registry, sync PeerSync, version string) http.Handler {
	redirects := handlers.NewRedirectHandler(logger, registry)
	health := handlers.NewHealthHandler(logger, registry, sync, version)
	peers := handlers.NewPeerHandler(logger, sync)

	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingWithSkip(logger, []string{"/api/v1/health"}))

	r.Get("/r/{code}", redirects.Resolve)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Health)
		r.Get("/peers", health.Peers)
		r.Post("/peers/sync", peers.Sync)

		r.Route("/redirects", func(r chi.Router) {
			r.Post("/", redirects.Create)
			r.Get("/", redirects.List)
			r.Get("/collisions", redirects.Collisions)
		})

		// Пути совпадают с peersync.DigestPath и остальными
		r.Route("/peer", func(r chi.Router) {
			r.Get("/digest", peers.Digest)
			r.Post("/fetch", peers.Fetch)
			r.Post("/push", peers.Push)
			r.Get("/stream", peers.Stream)
		})
	})

	return r
}
