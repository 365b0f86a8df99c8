// Package app assembles the sniper from configuration for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/alerting"
	"solana-cluster-sniper/internal/cluster"
	"solana-cluster-sniper/internal/config"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/ingestion"
	"solana-cluster-sniper/internal/journal"
	"solana-cluster-sniper/internal/observability"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/storage/migrations"
	pgstore "solana-cluster-sniper/internal/storage/postgres"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger}
}

// Run trades: ingestion, detection, gating, execution and position
// management, with persistence, alerts and the ops server alongside.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cfg := a.Config
	log := a.Logger.With().Str("component", "app").Logger()

	metrics := observability.NewMetrics(cfg.Ops.Namespace)

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	signer, err := loadSigner(cfg.Solana, cfg.Execution.DryRun, a.Logger)
	if err != nil {
		return err
	}
	rpc, err := a.newRPC(metrics)
	if err != nil {
		return err
	}
	routes := raydium.NewLoader(rpc.pool, cfg.LoaderConfig(), a.Logger)
	mkt, err := a.newMarket(ctx, rpc.pool, routes)
	if err != nil {
		return err
	}
	defer mkt.close()

	ex, err := a.newRouter(rpc, routes, signer, metrics.ObserveAttempt)
	if err != nil {
		return err
	}
	ledger := exposure.NewLedger(cfg.ExposureConfig(), a.Logger)
	wallets := cluster.NewWalletBook(cfg.ClusterConfig().Wallets)

	jrnl, err := journal.New(cfg.JournalConfig(), st.Stores, wallets, a.Logger)
	if err != nil {
		return err
	}
	sinks := orchestrator.Sinks{metrics, jrnl}
	background := []func(context.Context) error{jrnl.Run}
	if cfg.Alerting.Enabled {
		alerts := alerting.NewSink(cfg.SinkConfig(), a.newNotifier(), a.Logger)
		sinks = append(sinks, alerts)
		background = append(background, alerts.Run)
	}

	positions, err := position.NewManager(position.Options{
		Config:   cfg.PositionConfig(),
		Prices:   mkt.provider,
		Executor: ex.router,
		Ledger:   ledger,
		OnEvent: func(ev position.Event) {
			sinks.OnExit(orchestrator.ExitEventFrom(ev, time.Now()))
		},
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}
	if err := jrnl.Restore(ctx, positions, ledger, wallets); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	var orch *orchestrator.Orchestrator
	engine, err := a.newEngine(st, wallets, func(c *domain.Cluster) { orch.OnExpire(c) })
	if err != nil {
		return err
	}

	sources, closeSources, err := a.newSources(ctx, rpc.pool, mkt.sol)
	if err != nil {
		return err
	}
	defer closeSources()

	status := observability.StatusSource{
		Clusters:  engine.Active,
		Positions: positions.Positions,
		Exposure:  ledger.Totals,
		Paused:    ex.router.Paused,
		Extra: map[string]func() interface{}{
			"journal":   func() interface{} { return jrnl.Stats() },
			"endpoints": func() interface{} { return rpc.pool.Status() },
			"pause":     func() interface{} { return ex.router.PauseStatus() },
		},
		Ready: func() error {
			if paused, reason := ex.router.Paused(); paused {
				return fmt.Errorf("execution paused: %s", reason)
			}
			return nil
		},
	}
	metrics.WatchState(status)
	if cfg.Ops.Enabled {
		server := observability.NewServer(cfg.ServerConfig(), metrics, status, a.Logger)
		background = append(background, server.Run)
	}

	congestion := execution.NewCongestionMonitor(rpc.primary, ex.fees, cfg.Execution.CongestionInterval, a.Logger)
	background = append(background, congestion.Run)
	if !cfg.Execution.DryRun {
		owner := signer.PublicKey().String()
		background = append(background, func(ctx context.Context) error {
			return ex.pause.WatchBalance(ctx, rpc.primary, owner)
		})
	}

	orch, err = orchestrator.New(orchestrator.Options{
		Config:        cfg.OrchestratorConfig(),
		Engine:        engine,
		Gate:          a.newGate(),
		Market:        mkt.provider,
		Ledger:        ledger,
		Router:        ex.router,
		Positions:     positions,
		Sources:       sources,
		Sink:          sinks,
		Background:    background,
		OnSourceError: metrics.ObserveSourceError,
		OnTransfer: func(ctx context.Context, ev domain.TransferEvent) {
			metrics.ObserveTransfer(string(ev.Direction))
			jrnl.RecordTransfer(ctx, ev)
		},
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}

	log.Info().
		Bool("dry_run", cfg.Execution.DryRun).
		Str("owner", signer.PublicKey().String()).
		Int("sources", len(sources)).
		Msg("starting sniper")
	if err := orch.Run(ctx); err != nil {
		log.Error().Err(err).Msg("sniper terminated with error")
		return err
	}
	log.Info().Msg("sniper stopped")
	return nil
}

func (a *App) newEngine(st *stores, wallets *cluster.WalletBook, onExpire func(*domain.Cluster)) (*cluster.Engine, error) {
	return cluster.NewEngine(cluster.Options{
		Config:   a.Config.ClusterConfig(),
		Source:   st.events,
		Wallets:  wallets,
		Logger:   a.Logger,
		OnExpire: onExpire,
	})
}

// Scan runs ingestion and cluster detection without trading. Clusters are
// logged, persisted and alerted on like in Run.
func (a *App) Scan(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cfg := a.Config
	log := a.Logger.With().Str("component", "scan").Logger()

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rpc, err := a.newRPC(nil)
	if err != nil {
		return err
	}
	routes := raydium.NewLoader(rpc.pool, cfg.LoaderConfig(), a.Logger)
	mkt, err := a.newMarket(ctx, rpc.pool, routes)
	if err != nil {
		return err
	}
	defer mkt.close()

	wallets := cluster.NewWalletBook(cfg.ClusterConfig().Wallets)
	jrnl, err := journal.New(cfg.JournalConfig(), st.Stores, wallets, a.Logger)
	if err != nil {
		return err
	}
	sinks := orchestrator.Sinks{jrnl}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return jrnl.Run(ctx) })
	if cfg.Alerting.Enabled {
		alerts := alerting.NewSink(cfg.SinkConfig(), a.newNotifier(), a.Logger)
		sinks = append(sinks, alerts)
		g.Go(func() error { return alerts.Run(ctx) })
	}

	engine, err := a.newEngine(st, wallets, func(c *domain.Cluster) {
		sinks.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterExpired, Cluster: c, At: time.Now()})
	})
	if err != nil {
		return err
	}
	sources, closeSources, err := a.newSources(ctx, rpc.pool, mkt.sol)
	if err != nil {
		return err
	}
	defer closeSources()

	events := ingestion.Merge(ctx, sources, cfg.Orchestrator.DedupWindow, func(source string, err error) {
		log.Warn().Err(err).Str("source", source).Msg("source error")
	}, a.Logger)
	recorded := make(chan domain.TransferEvent, cap(events))
	g.Go(func() error {
		defer close(recorded)
		for ev := range events {
			jrnl.RecordTransfer(ctx, ev)
			select {
			case recorded <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error { return engine.Run(ctx, recorded) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c, ok := <-engine.Clusters():
				if !ok {
					return nil
				}
				log.Info().
					Str("cluster", c.ID).
					Str("token", c.Token).
					Int("score", c.Score).
					Str("signal", string(c.Signal)).
					Int("members", len(c.Members)).
					Msg("cluster detected")
				sinks.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c, At: time.Now()})
			}
		}
	})

	log.Info().Int("sources", len(sources)).Msg("scanning")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("scan stopped")
	return nil
}

// Migrate applies the Postgres and ClickHouse schemas for the configured DSNs.
func (a *App) Migrate(ctx context.Context) error {
	cfg := a.Config.Storage
	log := a.Logger.With().Str("component", "migrate").Logger()
	if cfg.PostgresDSN == "" && cfg.ClickhouseDSN == "" {
		return errors.New("no storage DSN configured")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("postgres migrations applied")
	}
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		_ = conn.Close()
		log.Info().Msg("clickhouse migrations applied")
	}
	return nil
}
