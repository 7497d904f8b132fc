package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/peersync"
	"github.com/iudanet/linkmesh/internal/registry"
	"github.com/iudanet/linkmesh/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRegistry реестр в памяти для тестов хендлеров
type fakeRegistry struct {
	addErr     error
	records    []models.Redirect
	collisions []cache.CodeCollision
	stats      registry.Stats

	mu        sync.Mutex
	lastPage  int
	lastSize  int
	lastQuery string
}

func (f *fakeRegistry) AddRedirect(ctx context.Context, destination, description string) (models.Redirect, error) {
	if f.addErr != nil {
		return models.Redirect{}, f.addErr
	}
	rec := models.Redirect{
		ID:             "node-a:1",
		ShortCode:      "abc123",
		DestinationURL: destination,
		Description:    description,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeRegistry) Resolve(ctx context.Context, code string) (string, error) {
	for _, rec := range f.records {
		if rec.ShortCode == code {
			return rec.DestinationURL, nil
		}
	}
	return "", registry.ErrNotFound
}

func (f *fakeRegistry) ListPage(ctx context.Context, page, pageSize int, search string) ([]models.Redirect, int) {
	f.mu.Lock()
	f.lastPage, f.lastSize, f.lastQuery = page, pageSize, search
	f.mu.Unlock()
	return f.records, len(f.records)
}

func (f *fakeRegistry) Collisions() []cache.CodeCollision {
	return f.collisions
}

func (f *fakeRegistry) Stats() registry.Stats {
	return f.stats
}

// fakeEngine движок синхронизации для тестов хендлеров
type fakeEngine struct {
	connErr  error
	fetchErr error
	pushErr  error
	syncErr  error
	status   peersync.Status
	digest   api.DigestResponse
	entries  []api.Entry
	pushed   []api.PushRequest
	accepted int
	synced   []string
}

func (f *fakeEngine) Digest(ctx context.Context) (*api.DigestResponse, error) {
	return &f.digest, nil
}

func (f *fakeEngine) Fetch(ctx context.Context, ids []string) ([]api.Entry, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []api.Entry
	for _, e := range f.entries {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeEngine) Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushed = append(f.pushed, req)
	return &api.PushResponse{Merged: len(req.Entries)}, nil
}

func (f *fakeEngine) Accept(w http.ResponseWriter, r *http.Request) {
	f.accepted++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (f *fakeEngine) Reconcile(ctx context.Context, addr string) (*peersync.SyncResult, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	f.synced = append(f.synced, addr)
	return &peersync.SyncResult{Pulled: 2, Merged: 1, Skipped: 1, Pushed: 3}, nil
}

func (f *fakeEngine) CheckConnectivity() error {
	return f.connErr
}

func (f *fakeEngine) Status() peersync.Status {
	return f.status
}
