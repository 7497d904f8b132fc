// Package app собирает узел из конфигурации: хранилище, реплику, кеш,
// реестр, движок синхронизации и HTTP сервер.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/config"
	"github.com/iudanet/linkmesh/internal/peersync"
	"github.com/iudanet/linkmesh/internal/registry"
	"github.com/iudanet/linkmesh/internal/replica"
	"github.com/iudanet/linkmesh/internal/server"
	"github.com/iudanet/linkmesh/internal/shortcode"
	"github.com/iudanet/linkmesh/internal/storage"
)

// App один узел сети редиректов
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Storage
	replica  *replica.Map
	registry *registry.Service
	engine   *peersync.Engine
	handler  http.Handler
}

// New открывает хранилище и связывает все компоненты узла.
// ctx ограничивает время жизни подписки кеша на реплику.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	const op = "app.New"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a, err := build(ctx, cfg, store, logger, version)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, store storage.Storage, logger *slog.Logger, version string) (*App, error) {
	nodeID, err := resolveNodeID(ctx, cfg.NodeID, store, logger)
	if err != nil {
		return nil, err
	}

	m, err := replica.Open(ctx, store, nodeID, logger, replica.WithSubscriberBuffer(cfg.Sync.SubscriberBuffer))
	if err != nil {
		return nil, fmt.Errorf("failed to open replica: %w", err)
	}

	codes, err := shortcode.New(cfg.ShortCode.Length)
	if err != nil {
		return nil, err
	}

	c := cache.New(logger, m.GetAll)
	reg, err := registry.New(ctx, m, c, codes, logger, registry.WithMaxRetries(cfg.ShortCode.MaxRetries))
	if err != nil {
		return nil, err
	}

	engine := peersync.New(m, peersync.Config{
		AdvertiseAddr:  cfg.AdvertiseAddr,
		BootstrapPeers: cfg.Sync.BootstrapPeers,
		ResyncInterval: cfg.Sync.ResyncInterval,
		BackoffBase:    cfg.Sync.BackoffBase,
		BackoffMax:     cfg.Sync.BackoffMax,
		BatchSize:      cfg.Sync.BatchSize,
	}, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		replica:  m,
		registry: reg,
		engine:   engine,
		handler:  server.NewRouter(logger, reg, engine, version),
	}, nil
}

// NodeID идентификатор узла
func (a *App) NodeID() string {
	return a.replica.NodeID()
}

// Handler HTTP обработчик узла
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry реестр редиректов узла
func (a *App) Registry() *registry.Service {
	return a.registry
}

// Engine движок синхронизации узла
func (a *App) Engine() *peersync.Engine {
	return a.engine
}

// Run слушает cfg.ListenAddr и обслуживает узел до отмены ctx
func (a *App) Run(ctx context.Context) error {
	const op = "app.Run"

	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%s: failed to listen: %w", op, err)
	}
	return a.Serve(ctx, ln)
}

// Serve обслуживает HTTP запросы на ln и синхронизирует реплику с узлами.
// После отмены ctx сервер завершается штатно в пределах shutdown_timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	const op = "app.Serve"

	srv := &http.Server{
		Handler:        a.handler,
		ReadTimeout:    a.cfg.HTTP.ReadTimeout,
		WriteTimeout:   a.cfg.HTTP.WriteTimeout,
		IdleTimeout:    a.cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: a.cfg.HTTP.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.engine.Run(ctx)
	})

	if a.cfg.Sync.PeersFile != "" {
		g.Go(func() error {
			return peersync.WatchPeersFile(ctx, a.cfg.Sync.PeersFile, a.engine, a.logger)
		})
	}

	g.Go(func() error {
		a.logger.Info("Server listening", "addr", ln.Addr().String(), "node_id", a.NodeID())

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}
		a.logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

// Close отписывает кеш и закрывает хранилище
func (a *App) Close() error {
	a.registry.Close()
	return a.store.Close()
}
