// Package orchestrator wires detection to execution: clusters flow through
// the safety gate and the exposure ledger into the router, and fills open
// positions. Every outcome is reported to the configured sinks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/amm"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/ingestion"
	"solana-cluster-sniper/internal/market"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid orchestrator config")

// Config holds buy sizing and intent constraints.
type Config struct {
	TradeLamports    uint64
	MinTradeLamports uint64
	// SizeToImpact shrinks the trade until its quoted impact fits MaxImpactBps.
	SizeToImpact   bool
	MaxSlippageBps int
	MaxImpactBps   int
	IntentTTL      time.Duration
	// MaxConcurrentBuys bounds clusters handled at once.
	MaxConcurrentBuys int
	DedupWindow       int
	// LateContext is how long a failed intent's cluster is remembered for a late fill.
	LateContext time.Duration
}

// DefaultConfig buys 0.1 SOL per cluster.
func DefaultConfig() Config {
	return Config{
		TradeLamports:     100_000_000,
		MinTradeLamports:  10_000_000,
		SizeToImpact:      true,
		MaxSlippageBps:    2000,
		MaxImpactBps:      2000,
		IntentTTL:         time.Minute,
		MaxConcurrentBuys: 4,
		DedupWindow:       ingestion.DefaultDedupWindow,
		LateContext:       10 * time.Minute,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	switch {
	case c.TradeLamports == 0:
		return fmt.Errorf("%w: trade size is zero", ErrInvalidConfig)
	case c.MinTradeLamports > c.TradeLamports:
		return fmt.Errorf("%w: min trade %d > trade %d", ErrInvalidConfig, c.MinTradeLamports, c.TradeLamports)
	case c.MaxSlippageBps <= 0 || c.MaxSlippageBps > 10_000:
		return fmt.Errorf("%w: max slippage %d bps", ErrInvalidConfig, c.MaxSlippageBps)
	case c.MaxImpactBps <= 0 || c.MaxImpactBps > 10_000:
		return fmt.Errorf("%w: max impact %d bps", ErrInvalidConfig, c.MaxImpactBps)
	case c.IntentTTL <= 0:
		return fmt.Errorf("%w: intent ttl %s", ErrInvalidConfig, c.IntentTTL)
	}
	return nil
}

// Gate admits or refuses a buy.
type Gate interface {
	Evaluate(ctx context.Context, req gate.Request) gate.Decision
}

// Router executes intents and reports fills that land late.
type Router interface {
	Execute(ctx context.Context, intent *domain.TradeIntent) (*execution.Result, error)
	Paused() (bool, string)
	Late() <-chan *domain.Fill
}

// ClusterEngine is the detection side.
type ClusterEngine interface {
	Run(ctx context.Context, events <-chan domain.TransferEvent) error
	Clusters() <-chan *domain.Cluster
	MarkActedOn(id string) error
}

// Positions is the position book.
type Positions interface {
	Open(fill *domain.Fill, pool, clusterID string) (*domain.Position, error)
	Add(fill *domain.Fill) (*domain.Position, error)
	Close(token string, fill *domain.Fill) bool
	Run(ctx context.Context) error
}

// Options configures an Orchestrator.
type Options struct {
	Config    Config
	Engine    ClusterEngine
	Gate      Gate
	Market    market.Provider
	Ledger    *exposure.Ledger
	Router    Router
	Positions Positions
	Sources   []ingestion.Source
	Sink      Sink
	// Background loops run alongside the pipeline, e.g. the congestion
	// monitor, the balance watch and the ops server.
	Background []func(ctx context.Context) error
	// OnSourceError is told about producer errors.
	OnSourceError func(source string, err error)
	// OnTransfer sees every merged event before the engine does. It runs
	// inline, so a store-backed event source has the row before its scan.
	OnTransfer func(ctx context.Context, ev domain.TransferEvent)
	Logger     zerolog.Logger
}

type pending struct {
	cluster *domain.Cluster
	pool    string
	at      time.Time
}

// Orchestrator runs the trading pipeline.
type Orchestrator struct {
	cfg        Config
	engine     ClusterEngine
	gate       Gate
	market     market.Provider
	ledger     *exposure.Ledger
	router     Router
	positions  Positions
	sources    []ingestion.Source
	sink       Sink
	background []func(ctx context.Context) error
	onSrcErr   func(string, error)
	onXfer     func(context.Context, domain.TransferEvent)
	log        zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	failed map[string]pending // intent id -> context for a late fill
}

// New validates options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Gate == nil || opts.Market == nil || opts.Ledger == nil || opts.Router == nil || opts.Positions == nil {
		return nil, fmt.Errorf("%w: gate, market, ledger, router and positions are required", ErrInvalidConfig)
	}
	if opts.Config.MaxConcurrentBuys <= 0 {
		opts.Config.MaxConcurrentBuys = 1
	}
	sink := opts.Sink
	if sink == nil {
		sink = Sinks(nil)
	}
	return &Orchestrator{
		cfg:        opts.Config,
		engine:     opts.Engine,
		gate:       opts.Gate,
		market:     opts.Market,
		ledger:     opts.Ledger,
		router:     opts.Router,
		positions:  opts.Positions,
		sources:    opts.Sources,
		sink:       sink,
		background: opts.Background,
		onSrcErr:   opts.OnSourceError,
		onXfer:     opts.OnTransfer,
		log:        opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
		failed:     make(map[string]pending),
	}, nil
}

// Run starts ingestion, detection, position monitoring, late-fill handling
// and the background loops. It returns when ctx is cancelled or any loop
// fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.engine == nil {
		return fmt.Errorf("%w: cluster engine is required to run", ErrInvalidConfig)
	}
	g, ctx := errgroup.WithContext(ctx)

	events := ingestion.Merge(ctx, o.sources, o.cfg.DedupWindow, o.onSrcErr, o.log)
	if o.onXfer != nil {
		events = o.tee(ctx, events)
	}
	g.Go(func() error {
		err := o.engine.Run(ctx, events)
		if err == nil {
			o.log.Warn().Msg("all ingestion sources stopped")
		}
		return err
	})
	g.Go(func() error { return o.consume(ctx) })
	g.Go(func() error { return o.positions.Run(ctx) })
	g.Go(func() error { return o.lateFills(ctx) })
	for _, loop := range o.background {
		g.Go(func() error { return loop(ctx) })
	}

	o.log.Info().Int("sources", len(o.sources)).Int("background", len(o.background)).Msg("pipeline started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tee hands each event to the transfer hook, then forwards it.
func (o *Orchestrator) tee(ctx context.Context, in <-chan domain.TransferEvent) <-chan domain.TransferEvent {
	out := make(chan domain.TransferEvent, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			o.onXfer(ctx, ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// consume handles clusters from the engine, several tokens at a time.
func (o *Orchestrator) consume(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrentBuys)
	defer func() { _ = g.Wait() }()

	clusters := o.engine.Clusters()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-clusters:
			if !ok {
				return nil
			}
			o.sink.OnCluster(ClusterEvent{Kind: ClusterDetected, Cluster: c, At: o.now()})
			g.Go(func() error {
				o.HandleCluster(ctx, c)
				return nil
			})
		}
	}
}

// OnExpire reports a cluster that aged out of ACTIVE. It is meant as the
// cluster engine's expiry callback.
func (o *Orchestrator) OnExpire(c *domain.Cluster) {
	o.sink.OnCluster(ClusterEvent{Kind: ClusterExpired, Cluster: c, At: o.now()})
}

// HandleCluster takes one cluster through pause check, snapshot, gate,
// exposure reservation, execution and position open. Any refusal or
// failure releases the reservation. The returned event has already been
// delivered to the sink.
func (o *Orchestrator) HandleCluster(ctx context.Context, c *domain.Cluster) TradeEvent {
	ev := o.handle(ctx, c)
	ev.Cluster = c
	ev.At = o.now()

	l := o.log.Info()
	if ev.Status == TradeFailed {
		l = o.log.Warn()
	}
	l.Str("cluster_id", c.ID).Str("token", c.Token).Str("status", string(ev.Status)).
		Str("reason", ev.Reason).Str("detail", ev.Detail).Msg("cluster handled")
	o.sink.OnTrade(ev)
	return ev
}

func rejected(reason, format string, args ...interface{}) TradeEvent {
	return TradeEvent{Status: TradeRejected, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (o *Orchestrator) handle(ctx context.Context, c *domain.Cluster) TradeEvent {
	if !c.Signal.Actionable() {
		return rejected(string(gate.ReasonSignal), "signal %s score %d", c.Signal, c.Score)
	}
	if paused, why := o.router.Paused(); paused {
		return rejected(ReasonPaused, "%s", why)
	}
	if o.ledger.Holds(c.Token) {
		return rejected(ReasonExposure, "%v", exposure.ErrTokenBusy)
	}

	snap, err := o.market.Snapshot(ctx, c.Token)
	if err != nil {
		ev := rejected(ReasonMarketData, "%v", err)
		ev.Err = err
		return ev
	}

	amount := o.cfg.TradeLamports
	if o.cfg.SizeToImpact && snap.HasReserves() {
		amount = amm.SizeForImpact(snap.ReserveSOL, snap.ReserveToken, amount, amm.RaydiumFee, o.cfg.MaxImpactBps)
		if amount < o.cfg.MinTradeLamports {
			return rejected(ReasonSizing, "impact-bounded size %d < minimum %d", amount, o.cfg.MinTradeLamports)
		}
	}

	d := o.gate.Evaluate(ctx, gate.Request{Cluster: c, Snapshot: snap, TradeLamports: amount})
	if !d.Admit {
		return rejected(string(d.Reason), "%s", d.Detail)
	}

	res, err := o.ledger.Reserve(c.Token, amount)
	if err != nil {
		ev := rejected(ReasonExposure, "%v", err)
		ev.Err = err
		return ev
	}

	now := o.now()
	intent := &domain.TradeIntent{
		ID:        uuid.NewString(),
		Token:     c.Token,
		Pool:      snap.Pool,
		Side:      domain.SideBuy,
		ClusterID: c.ID,
		AmountIn:  amount,
		Constraints: domain.Constraints{
			MaxSlippageBps: o.cfg.MaxSlippageBps,
			MaxImpactBps:   o.cfg.MaxImpactBps,
			Deadline:       now.Add(o.cfg.IntentTTL),
		},
		CreatedAt: now,
	}

	result, err := o.router.Execute(ctx, intent)
	ev := TradeEvent{Intent: intent}
	if result != nil {
		ev.Attempts = result.Attempts
	}
	if err != nil || result == nil || result.Fill == nil {
		if rerr := o.ledger.Release(c.Token); rerr != nil {
			o.log.Error().Err(rerr).Str("token", c.Token).Msg("release after failed buy")
		}
		o.remember(intent, c, snap.Pool)
		if err == nil {
			err = fmt.Errorf("%w: no fill for intent %s", domain.ErrExecutionFailed, intent.ID)
		}
		ev.Status, ev.Reason, ev.Detail, ev.Err = TradeFailed, ReasonExecution, err.Error(), err
		return ev
	}

	ev.Status = TradeFilled
	ev.Fill = result.Fill
	ev.Position, ev.Err = o.open(res, result.Fill, snap.Pool, c.ID)
	if ev.Err != nil {
		ev.Detail = ev.Err.Error()
	}
	if o.engine != nil {
		if err := o.engine.MarkActedOn(c.ID); err != nil {
			o.log.Warn().Err(err).Str("cluster_id", c.ID).Msg("mark acted on")
		}
	}
	return ev
}

// open commits exposure to the filled notional and opens the position.
// A nil reservation means the capital was re-installed from a late fill.
func (o *Orchestrator) open(res *exposure.Reservation, fill *domain.Fill, pool, clusterID string) (*domain.Position, error) {
	if res != nil {
		if err := o.ledger.Commit(res, min(fill.InAmount, res.Lamports)); err != nil {
			o.log.Error().Err(err).Str("token", fill.Token).Msg("commit exposure")
		}
	} else {
		if o.ledger.Holds(fill.Token) {
			return o.fold(fill)
		}
		o.ledger.Restore(fill.Token, fill.InAmount)
	}
	pos, err := o.positions.Open(fill, pool, clusterID)
	if err != nil {
		o.log.Error().Err(err).Str("token", fill.Token).Str("signature", fill.Signature).Msg("open position")
		return nil, err
	}
	return pos, nil
}

// fold adds a late buy to the position already open for its token, so the
// extra capital is counted and the exit sells the extra tokens.
func (o *Orchestrator) fold(fill *domain.Fill) (*domain.Position, error) {
	pos, err := o.positions.Add(fill)
	if err != nil {
		o.log.Error().Err(err).Str("token", fill.Token).Str("signature", fill.Signature).Msg("add late buy to position")
		return nil, err
	}
	if err := o.ledger.Add(fill.Token, fill.InAmount); err != nil {
		o.log.Error().Err(err).Str("token", fill.Token).Msg("add exposure")
	}
	return pos, nil
}

func (o *Orchestrator) remember(intent *domain.TradeIntent, c *domain.Cluster, pool string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	for id, p := range o.failed {
		if now.Sub(p.at) > o.cfg.LateContext {
			delete(o.failed, id)
		}
	}
	o.failed[intent.ID] = pending{cluster: c, pool: pool, at: now}
}

func (o *Orchestrator) recall(intentID string) (pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.failed[intentID]
	delete(o.failed, intentID)
	return p, ok
}

func (o *Orchestrator) lateFills(ctx context.Context) error {
	late := o.router.Late()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-late:
			if !ok {
				return nil
			}
			o.HandleLateFill(f)
		}
	}
}

// HandleLateFill reconciles a fill for an intent the router had already
// given up on, or for a hedged sibling of one that won. A late buy opens a
// position or adds to the one already open; a late sell closes one.
func (o *Orchestrator) HandleLateFill(f *domain.Fill) TradeEvent {
	ev := TradeEvent{Status: TradeFilled, Fill: f, Late: true, At: o.now()}
	switch f.Side {
	case domain.SideBuy:
		p, ok := o.recall(f.IntentID)
		var clusterID string
		if ok {
			ev.Cluster = p.cluster
			clusterID = p.cluster.ID
		}
		ev.Position, ev.Err = o.open(nil, f, p.pool, clusterID)
		if ok && o.engine != nil && ev.Err == nil {
			if err := o.engine.MarkActedOn(clusterID); err != nil {
				o.log.Debug().Err(err).Str("cluster_id", clusterID).Msg("mark acted on after late fill")
			}
		}
	case domain.SideSell:
		if !o.positions.Close(f.Token, f) {
			ev.Err = fmt.Errorf("%w: late sell for %s without a position", domain.ErrInvariantViolation, f.Token)
		}
	}
	if ev.Err != nil {
		ev.Detail = ev.Err.Error()
	}
	o.log.Warn().Str("token", f.Token).Str("side", string(f.Side)).Str("signature", f.Signature).
		AnErr("err", ev.Err).Msg("late fill reconciled")
	o.sink.OnTrade(ev)
	return ev
}
