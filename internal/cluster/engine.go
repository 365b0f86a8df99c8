package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/idhash"
)

// ErrUnknownCluster is returned by MarkActedOn for an id the engine does not hold.
var ErrUnknownCluster = errors.New("unknown cluster")

// Options configures an Engine.
type Options struct {
	Config Config
	// Source overrides the in-memory window. Ingest still feeds the wallet book.
	Source  EventSource
	Wallets *WalletBook
	Logger  zerolog.Logger
	// OnExpire is called for every cluster that leaves ACTIVE through TTL.
	OnExpire func(*domain.Cluster)
	Now      func() time.Time
}

// Engine ingests transfer events, runs detectors per token and keeps the
// resulting clusters until they expire.
type Engine struct {
	cfg       Config
	detectors []Detector
	scorer    *Scorer
	wallets   *WalletBook
	window    *Window
	source    EventSource
	onExpire  func(*domain.Cluster)
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	seen     map[string]time.Time // event key -> event time
	clusters map[string]*domain.Cluster
	live     map[string]string // token -> id of the unexpired cluster

	out chan *domain.Cluster
}

// NewEngine validates the config and builds the enabled detectors.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}
	e := &Engine{
		cfg:      opts.Config,
		scorer:   NewScorer(opts.Config.Score),
		wallets:  opts.Wallets,
		window:   NewWindow(),
		source:   opts.Source,
		onExpire: opts.OnExpire,
		log:      opts.Logger.With().Str("component", "cluster").Logger(),
		now:      opts.Now,
		seen:     make(map[string]time.Time),
		clusters: make(map[string]*domain.Cluster),
		live:     make(map[string]string),
		out:      make(chan *domain.Cluster, 64),
	}
	if e.wallets == nil {
		e.wallets = NewWalletBook(opts.Config.Wallets)
	}
	if e.source == nil {
		e.source = e.window
	}
	if e.now == nil {
		e.now = time.Now
	}
	if c := opts.Config.Temporal; c.Enabled {
		e.detectors = append(e.detectors, NewTemporal(c))
	}
	if c := opts.Config.Amount; c.Enabled {
		e.detectors = append(e.detectors, NewAmountSimilarity(c))
	}
	if c := opts.Config.Accumulation; c.Enabled {
		e.detectors = append(e.detectors, NewEarlyAccumulation(c))
	}
	return e, nil
}

// Wallets exposes the engine's wallet book.
func (e *Engine) Wallets() *WalletBook { return e.wallets }

// Clusters delivers clusters created by Run.
func (e *Engine) Clusters() <-chan *domain.Cluster { return e.out }

// retention is how long buys and signatures are kept.
func (e *Engine) retention() time.Duration {
	r := e.cfg.Lookback
	if e.cfg.Accumulation.Enabled && e.cfg.Accumulation.Baseline > r {
		r = e.cfg.Accumulation.Baseline
	}
	return r
}

// Ingest records one event. It returns false for a replayed event or an
// event older than the retention horizon; neither touches stats or volumes.
func (e *Engine) Ingest(ev domain.TransferEvent) bool {
	if ev.Signature == "" || ev.Token == "" {
		return false
	}
	horizon := e.now().Add(-e.retention())
	e.mu.Lock()
	key := ev.Key()
	if _, dup := e.seen[key]; dup || ev.Timestamp.Before(horizon) {
		e.mu.Unlock()
		return false
	}
	e.seen[key] = ev.Timestamp
	e.mu.Unlock()

	e.wallets.Apply(&ev)
	if ev.Direction == domain.DirectionBuy {
		e.window.Add(ev)
	}
	return true
}

type tokenResult struct {
	token      string
	candidates []*Candidate
	buys       []domain.TransferEvent
}

// Scan runs every detector over each token with recent buys and returns the
// clusters created in this pass. Tokens whose window cannot be read are skipped.
func (e *Engine) Scan(ctx context.Context, now time.Time) ([]*domain.Cluster, error) {
	from := now.Add(-e.retention())
	tokens, err := e.source.Tokens(ctx, now.Add(-e.cfg.Lookback))
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	var (
		resMu   sync.Mutex
		results []tokenResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Parallelism > 0 {
		g.SetLimit(e.cfg.Parallelism)
	}
	for _, token := range tokens {
		g.Go(func() error {
			buys, err := e.source.Window(gctx, token, from, now)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ev := e.log.Warn()
				if errors.Is(err, domain.ErrDataUnavailable) {
					ev = e.log.Debug()
				}
				ev.Err(err).Str("token", token).Msg("skipping token this scan")
				return nil
			}
			sortBuys(buys)
			cands := e.detect(token, buys, now)
			if len(cands) == 0 {
				return nil
			}
			resMu.Lock()
			results = append(results, tokenResult{token: token, candidates: cands, buys: buys})
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].token < results[j].token })
	var created []*domain.Cluster
	for _, r := range results {
		if c := e.admit(e.merge(r, now)); c != nil {
			created = append(created, c)
		}
	}
	e.prune(from)
	return created, nil
}

func (e *Engine) detect(token string, buys []domain.TransferEvent, now time.Time) []*Candidate {
	recent := since(buys, now.Add(-e.cfg.Lookback))
	var out []*Candidate
	for _, d := range e.detectors {
		input := recent
		if d.Method() == domain.MethodEarlyAccumulation {
			input = buys
		}
		if c := d.Detect(token, input, now); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// merge folds all candidates for one token into a scored cluster.
func (e *Engine) merge(r tokenResult, now time.Time) *domain.Cluster {
	members := make(map[string]struct{})
	var methods domain.Method
	start, end := r.candidates[0].Start, r.candidates[0].End
	for _, c := range r.candidates {
		methods |= c.Method
		for _, m := range c.Members {
			members[m] = struct{}{}
		}
		if c.Start.Before(start) {
			start = c.Start
		}
		if c.End.After(end) {
			end = c.End
		}
	}

	volume := decimal.Zero
	counted := make(map[string]struct{})
	for i := range r.buys {
		b := &r.buys[i]
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		if _, ok := members[b.Wallet]; !ok {
			continue
		}
		if _, ok := counted[b.Signature]; ok {
			continue
		}
		counted[b.Signature] = struct{}{}
		volume = volume.Add(b.QuoteUSD)
	}

	sorted := sortedKeys(members)
	smart := e.wallets.SmartFraction(sorted)
	score := e.scorer.Score(ScoreInput{
		Members:       len(sorted),
		SmartFraction: smart,
		VolumeUSD:     volume,
		Width:         end.Sub(start),
		Methods:       methods,
	})
	return &domain.Cluster{
		ID:                 idhash.ComputeClusterID(r.token, start.UnixMilli(), sorted),
		Token:              r.token,
		Members:            sorted,
		Methods:            methods,
		WindowStart:        start,
		WindowEnd:          end,
		VolumeUSD:          volume,
		SmartMoneyFraction: smart,
		Score:              score,
		Signal:             e.scorer.Classify(score),
		Status:             domain.ClusterActive,
		DetectedAt:         now,
		ExpiresAt:          now.Add(e.cfg.TTL),
	}
}

// admit stores c unless it repeats a known cluster or does not outscore the
// token's live cluster. A higher-scoring detection supersedes an ACTIVE one.
func (e *Engine) admit(c *domain.Cluster) *domain.Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, known := e.clusters[c.ID]; known {
		return nil
	}
	if id, ok := e.live[c.Token]; ok {
		prev := e.clusters[id]
		switch {
		case prev == nil:
			delete(e.live, c.Token)
		case prev.Status == domain.ClusterActedOn || c.Score <= prev.Score:
			return nil
		default:
			prev.Status = domain.ClusterExpired
			e.log.Debug().Str("token", c.Token).Str("superseded", prev.ID).Int("score", c.Score).Msg("cluster upgraded")
		}
	}
	e.clusters[c.ID] = c
	e.live[c.Token] = c.ID
	e.log.Info().
		Str("token", c.Token).
		Str("cluster_id", c.ID).
		Int("members", len(c.Members)).
		Str("methods", c.Methods.String()).
		Int("score", c.Score).
		Str("signal", string(c.Signal)).
		Msg("cluster detected")
	return c.Clone()
}

func (e *Engine) prune(before time.Time) {
	dropped := e.window.Prune(before)
	e.mu.Lock()
	for key, ts := range e.seen {
		if ts.Before(before) {
			delete(e.seen, key)
			dropped = append(dropped, key)
		}
	}
	e.mu.Unlock()
	e.wallets.Forget(dropped)
}

// Active returns copies of ACTIVE clusters ordered by detection time.
func (e *Engine) Active() []*domain.Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Cluster
	for _, c := range e.clusters {
		if c.Status == domain.ClusterActive {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkActedOn moves an ACTIVE cluster to ACTED_ON.
func (e *Engine) MarkActedOn(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clusters[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, id)
	}
	if c.Status != domain.ClusterActive {
		return fmt.Errorf("%w: cluster %s is %s", domain.ErrInvariantViolation, id, c.Status)
	}
	c.Status = domain.ClusterActedOn
	return nil
}

// Expire moves ACTIVE clusters past their TTL to EXPIRED and forgets
// finished clusters older than the retention horizon.
func (e *Engine) Expire(now time.Time) []*domain.Cluster {
	e.mu.Lock()
	var expired []*domain.Cluster
	horizon := now.Add(-e.retention())
	for id, c := range e.clusters {
		switch {
		case c.Status == domain.ClusterActive && !now.Before(c.ExpiresAt):
			c.Status = domain.ClusterExpired
			expired = append(expired, c.Clone())
		case c.Status != domain.ClusterActive && c.ExpiresAt.Before(horizon):
			delete(e.clusters, id)
		}
		if c.Status != domain.ClusterActive && !c.ExpiresAt.After(now) && e.live[c.Token] == id {
			delete(e.live, c.Token)
		}
	}
	e.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	for _, c := range expired {
		e.log.Debug().Str("cluster_id", c.ID).Str("token", c.Token).Msg("cluster expired")
		if e.onExpire != nil {
			e.onExpire(c)
		}
	}
	return expired
}

// Run ingests events and scans every ScanInterval until ctx is done or
// events is closed. New clusters are sent on Clusters(), blocking if the
// consumer lags.
func (e *Engine) Run(ctx context.Context, events <-chan domain.TransferEvent) error {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Ingest(ev)
		case <-ticker.C:
			now := e.now()
			e.Expire(now)
			created, err := e.Scan(ctx, now)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Error().Err(err).Msg("scan failed")
				continue
			}
			for _, c := range created {
				select {
				case e.out <- c:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
