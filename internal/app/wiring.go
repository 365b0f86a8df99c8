package app

import (
	"context"
	"errors"
	"fmt"

	"solana-cluster-sniper/internal/alerting"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/httpx"
	"solana-cluster-sniper/internal/ingestion"
	"solana-cluster-sniper/internal/market"
	"solana-cluster-sniper/internal/observability"
	"solana-cluster-sniper/internal/risk"
	"solana-cluster-sniper/internal/solana"
)

// rpcSet is the endpoint pool plus the primary client, which serves the
// calls the pool does not proxy (performance samples, balances).
type rpcSet struct {
	pool    *execution.EndpointPool
	primary *solana.HTTPClient
}

func (a *App) newRPC(metrics *observability.Metrics) (*rpcSet, error) {
	cfg := a.Config.Solana
	if len(cfg.RPCURLs) == 0 {
		return nil, errors.New("no rpc endpoints")
	}
	opts := []solana.ClientOption{
		solana.WithTimeout(cfg.Timeout),
		solana.WithMaxRetries(cfg.MaxRetries),
		solana.WithRetryDelay(cfg.RetryDelay),
	}
	if metrics != nil {
		opts = append(opts, solana.WithLatencyObserver(metrics.ObserveRPC))
	}

	execCfg, err := a.Config.ExecutionConfig()
	if err != nil {
		return nil, err
	}
	set := &rpcSet{}
	eps := make([]execution.Endpoint, len(cfg.RPCURLs))
	for i, url := range cfg.RPCURLs {
		client := solana.NewHTTPClient(url, opts...)
		if i == 0 {
			set.primary = client
		}
		eps[i] = execution.Endpoint{Name: fmt.Sprintf("rpc%d", i), Client: client}
	}
	set.pool = execution.NewEndpointPool(eps, execCfg.Breaker, a.Logger)
	return set, nil
}

// marketSet is the snapshot provider and the SOL/USD pricer behind it.
type marketSet struct {
	provider market.Provider
	sol      market.SOLPricer
	close    func()
}

func (a *App) newMarket(ctx context.Context, rpc solana.RPCClient, routes market.RouteSource) (*marketSet, error) {
	cfg := a.Config.Market
	client := httpx.NewClient(cfg.Timeout, httpx.WithLimiter(httpx.NewLimiter(cfg.RPS, cfg.Burst)))
	dex := market.NewDexScreener(cfg.DexScreenerURL, client)
	live := market.NewLive(dex, routes, rpc, a.Config.LiveConfig(), a.Logger)

	set := &marketSet{
		sol:   market.NewCachedSOLPrice(dex, cfg.SOLPriceTTL, cfg.SOLPriceMaxAge),
		close: func() {},
	}
	var cache market.Cache
	switch cfg.Cache {
	case "redis":
		r := a.Config.Redis
		rdb, err := market.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		set.close = func() { _ = rdb.Close() }
		cache = market.NewRedisCache(rdb, r.Prefix)
	default:
		cache = market.NewMemoryCache()
	}
	set.provider = market.NewCached(live, cache, cfg.CacheTTL, a.Logger)
	return set, nil
}

// newSources builds the enabled transfer event producers. The returned
// closer shuts the WebSocket, if one was dialled.
func (a *App) newSources(ctx context.Context, rpc solana.RPCClient, pricer ingestion.QuotePricer) ([]ingestion.Source, func(), error) {
	cfg := a.Config
	decoder := ingestion.NewDecoder(rpc, pricer, cfg.Ingestion.Wallets, a.Logger)
	closer := func() {}

	var sources []ingestion.Source
	if cfg.Ingestion.WSEnabled {
		ws, err := solana.DialWS(ctx, cfg.Solana.WSURL, cfg.WSConfig(), a.Logger)
		if err != nil {
			return nil, closer, fmt.Errorf("dial websocket: %w", err)
		}
		closer = func() { _ = ws.Close() }
		sources = append(sources, ingestion.NewWSSource(ws, decoder, cfg.IngestionWSConfig(), a.Logger))
	}
	if cfg.Ingestion.PollEnabled {
		sources = append(sources, ingestion.NewPollSource(rpc, decoder, cfg.IngestionPollConfig(), a.Logger))
	}
	return sources, closer, nil
}

func (a *App) newGate() *gate.Gate {
	found := risk.New(a.Config.RiskConfig(), a.Logger)
	sources := make([]gate.RiskSource, len(found))
	for i, s := range found {
		sources[i] = s
	}
	a.Logger.Info().Int("risk_sources", len(sources)).Msg("risk sources enabled")
	return gate.New(a.Config.GateConfig(), sources, a.Logger)
}

// executionSet is the router with the tuners shared by its paths.
type executionSet struct {
	router *execution.Router
	fees   *execution.FeeTuner
	pause  *execution.AutoPause
}

func (a *App) newRouter(rpc *rpcSet, routes execution.RouteSource, signer solana.Signer, observer execution.AttemptObserver) (*executionSet, error) {
	cfg, err := a.Config.ExecutionConfig()
	if err != nil {
		return nil, err
	}
	fees := execution.NewFeeTuner(cfg.Fee)
	tips := execution.NewTipPolicy(cfg.Tip)
	pause := execution.NewAutoPause(cfg.Pause, a.Logger)

	client := httpx.NewClient(cfg.AttemptTimeout)
	direct := execution.NewDirectBuilder(routes, rpc.pool, signer, cfg.ComputeUnitLimit)
	jupiter := execution.NewJupiterBuilder(cfg.JupiterURL, client, signer, cfg.ComputeUnitLimit)
	paths := buildPaths(cfg, pathDeps{
		direct:  direct,
		jupiter: jupiter,
		sender:  rpc.pool,
		chain:   rpc.pool,
		bundles: execution.NewJitoClient(cfg.JitoURL, client),
		signer:  signer,
		tips:    tips,
	})

	router, err := execution.NewRouter(execution.Options{
		Config:   cfg,
		Paths:    paths,
		Chain:    rpc.pool,
		Owner:    signer.PublicKey().String(),
		Fees:     fees,
		Tips:     tips,
		Pause:    pause,
		Observer: observer,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &executionSet{router: router, fees: fees, pause: pause}, nil
}

type pathDeps struct {
	direct  execution.Builder
	jupiter execution.Builder
	sender  execution.Sender
	chain   execution.BlockhashSource
	bundles execution.BundleSender
	signer  solana.Signer
	tips    *execution.TipPolicy
}

// buildPaths lays out submitters in configured order. A dry run replaces
// them all with one path that builds and signs but never sends.
func buildPaths(cfg execution.Config, d pathDeps) []execution.Submitter {
	builders := []execution.Builder{d.direct, d.jupiter}
	if cfg.DryRun {
		return []execution.Submitter{execution.NewDryRunPath(builders)}
	}
	out := make([]execution.Submitter, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		switch p {
		case domain.PathBundle:
			out = append(out, execution.NewBundlePath(builders, d.bundles, d.chain, d.signer, d.tips))
		case domain.PathDirect:
			out = append(out, execution.NewDirectPath(d.direct, d.sender))
		case domain.PathAggregator:
			out = append(out, execution.NewAggregatorPath(d.jupiter, d.sender))
		case domain.PathRPC:
			out = append(out, execution.NewRPCPath(builders, d.sender))
		}
	}
	return out
}

func (a *App) newNotifier() alerting.Notifier {
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if t := a.Config.Alerting.Telegram; t.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(t.BotToken, t.ChatID, t.APIBase, t.Timeout, a.Logger))
	}
	return notifiers
}
