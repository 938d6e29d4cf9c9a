package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BICAS-web3/Backend/internal/config"
	"github.com/BICAS-web3/Backend/internal/decoder"
	"github.com/BICAS-web3/Backend/internal/hub"
	"github.com/BICAS-web3/Backend/internal/oracle"
	"github.com/BICAS-web3/Backend/internal/pipeline"
	"github.com/BICAS-web3/Backend/internal/server"
	"github.com/BICAS-web3/Backend/internal/storage"
	"github.com/BICAS-web3/Backend/internal/watcher"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

// Run starts the full ingestion and distribution pipeline and blocks until
// an operator interrupt.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	queue := pipeline.NewQueue()
	broadcaster := pipeline.NewBroadcaster(a.Config.Pipeline.BroadcastBuffer)
	enricher := pipeline.NewEnricher(broadcaster, store, a.Config.Pipeline.EnricherBuffer, a.Logger)
	persister := pipeline.NewPersister(queue, store, a.Logger)

	a.spawn(ctx, "persister", persister.Run)
	a.spawn(ctx, "enricher", enricher.Run)

	if err := a.startWatchers(ctx, store, queue, enricher); err != nil {
		return err
	}
	if err := a.startOracle(ctx, store, queue); err != nil {
		return err
	}

	return a.serveHTTP(ctx, store, broadcaster)
}

// startWatchers spins up one chain watcher per network that has both games
// and at least one RPC endpoint configured.
func (a *App) startWatchers(ctx context.Context, store *storage.Store, queue *pipeline.Queue, enricher *pipeline.Enricher) error {
	networks, err := store.ListNetworks(ctx)
	if err != nil {
		return err
	}

	for _, network := range networks {
		endpoints, err := store.ListRPCEndpoints(ctx, network.ID)
		if err != nil {
			return err
		}
		if len(endpoints) == 0 {
			a.Logger.Info().Int64("network_id", network.ID).Msg("network has no rpc endpoints, skipping")
			continue
		}

		games, err := store.ListGames(ctx, network.ID)
		if err != nil {
			return err
		}
		registry := decoder.NewRegistry(games, a.Logger)
		if registry.Len() == 0 {
			a.Logger.Info().Int64("network_id", network.ID).Msg("network has no usable games, skipping")
			continue
		}

		urls := make([]string, 0, len(endpoints))
		for _, e := range endpoints {
			urls = append(urls, e.URL)
		}

		w := watcher.New(network, urls, registry, store, queue, enricher.In(), watcher.Options{
			PollInterval: a.Config.Watcher.PollInterval,
			Backoff:      a.Config.Watcher.Backoff,
			BlockWindow:  a.Config.Watcher.BlockWindow,
		}, a.Logger)

		a.spawn(ctx, "watcher "+network.Name, w.Run)
	}
	return nil
}

func (a *App) startOracle(ctx context.Context, store *storage.Store, queue *pipeline.Queue) error {
	if !a.Config.Oracle.Enabled {
		a.Logger.Info().Msg("price oracle disabled")
		return nil
	}

	endpoints, err := store.ListRPCEndpoints(ctx, a.Config.Oracle.NetworkID)
	if err != nil {
		return err
	}
	urls := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		urls = append(urls, e.URL)
	}

	o, err := oracle.New(oracle.Options{
		NetworkID:        a.Config.Oracle.NetworkID,
		RPCURLs:          urls,
		RouterAddress:    a.Config.Oracle.RouterAddress,
		BridgeAddress:    a.Config.Oracle.BridgeAddress,
		StableAddress:    a.Config.Oracle.StableAddress,
		RouterABIPath:    a.Config.Oracle.RouterABIPath,
		AmountInDecimals: a.Config.Oracle.AmountInDecimals,
		Interval:         a.Config.Oracle.Interval,
		RetryDelay:       a.Config.Oracle.RetryDelay,
	}, store, queue, a.Logger)
	if err != nil {
		return err
	}

	a.spawn(ctx, "oracle", o.Run)
	return nil
}

func (a *App) serveHTTP(ctx context.Context, store *storage.Store, broadcaster *pipeline.Broadcaster) error {
	srv := server.New(store, broadcaster, server.Options{
		PageSize: a.Config.Server.PageSize,
		Hub: hub.Options{
			KeepaliveInterval: a.Config.Hub.KeepaliveInterval,
			MaxSubscriptions:  a.Config.Hub.MaxSubscriptions,
		},
	}, a.Logger)

	httpServer := &http.Server{
		Addr:    a.Config.Server.Addr(),
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		timeout := a.Config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	a.Logger.Info().Str("addr", httpServer.Addr).Msg("serving http and realtime updates")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		a.Logger.Info().Msg("server stopped")
		return nil
	}
	return err
}

// spawn runs a long-lived task in its own goroutine. Tasks only return on
// context cancellation or unrecoverable wiring errors, both worth a log line
// and neither worth taking the process down.
func (a *App) spawn(ctx context.Context, name string, run func(context.Context) error) {
	go func() {
		err := run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Str("task", name).Msg("task exited")
			return
		}
		a.Logger.Debug().Str("task", name).Msg("task stopped")
	}()
}

// ExportOptions hold parameters for exporting historical bets.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
