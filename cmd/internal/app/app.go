package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"beacon/cmd/internal/delivery"
	"beacon/cmd/internal/relay"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns the wired service: registry, gateway, delivery, stores, HTTP server.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	sessions relay.SessionStore
	registry *relay.Registry
	gateway  *relay.Gateway
	server   *http.Server
}

// New wires all components from config. It fails fast on bad security
// material or an unreachable database.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	secret, err := validateSecurity(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db pool: %w", err)
		}
		a.dbPool = pool

		store, err := relay.NewPostgresSessionStore(pool, relay.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("session store: %w", err)
		}
		a.sessions = store
		log.Info("app.sessions.postgres", "schema", cfg.DBSchema)
	} else {
		a.sessions = relay.NewMemorySessionStore()
		log.Warn("app.sessions.memory", "hint", "set BEACON_DATABASE_URL to survive restarts")
	}

	deliverer := delivery.NewWebhookDeliverer(log,
		delivery.WithBaseURL(cfg.WebhookBaseURL),
		delivery.WithChunkLimit(cfg.ChunkLimit),
	)

	a.registry = relay.NewRegistry(log, deliverer, a.sessions, relay.ActorConfig{
		AskTimeout:     cfg.AskTimeout,
		IdleWindow:     cfg.IdleWindow,
		TimeoutMessage: cfg.TimeoutMessage,
		FallbackAppID:  cfg.FallbackAppID,
	})

	a.gateway = relay.NewGateway(log, a.registry, secret)

	api := newAPIHandler(log, a.registry, secret, cfg.BotKey)

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, a.dbPool, a.dbPool != nil, a.gateway, api)

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, log),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	return a, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.log.Info("app.listen", "addr", a.cfg.HTTPAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.log.Info("app.shutdown.begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.close()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	a.log.Info("app.shutdown.done")
	return nil
}

func (a *App) close() {
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}
