// Package position tracks open positions and drives them to an exit.
package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
)

// PriceSource returns a fresh market snapshot for a token.
type PriceSource interface {
	Snapshot(ctx context.Context, token string) (*domain.MarketSnapshot, error)
}

// Executor runs sell intents.
type Executor interface {
	Execute(ctx context.Context, intent *domain.TradeIntent) (*execution.Result, error)
}

// Releaser frees a token's exposure once its position closes.
type Releaser interface {
	Release(token string) error
}

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventOpened     EventKind = "opened"
	EventExiting    EventKind = "exiting"
	EventClosed     EventKind = "closed"
	EventExitFailed EventKind = "exit_failed"
)

// Event reports a transition. Position is a copy.
type Event struct {
	Kind     EventKind
	Position *domain.Position
	Fill     *domain.Fill
	Err      error
}

// Options configures a Manager.
type Options struct {
	Config   Config
	Prices   PriceSource
	Executor Executor
	Ledger   Releaser
	OnEvent  func(Event)
	Logger   zerolog.Logger
}

// Manager owns every OPEN and EXITING position.
type Manager struct {
	cfg     Config
	prices  PriceSource
	exec    Executor
	ledger  Releaser
	onEvent func(Event)
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position
	renounced map[string]bool // authority state first seen per token
	inflight  map[string]bool
	closed    []*domain.Position
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Config.Parallelism <= 0 {
		opts.Config.Parallelism = 8
	}
	return &Manager{
		cfg:       opts.Config,
		prices:    opts.Prices,
		exec:      opts.Executor,
		ledger:    opts.Ledger,
		onEvent:   opts.OnEvent,
		log:       opts.Logger.With().Str("component", "positions").Logger(),
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		renounced: make(map[string]bool),
		inflight:  make(map[string]bool),
	}, nil
}

// Open records a position from a buy fill.
func (m *Manager) Open(fill *domain.Fill, pool, clusterID string) (*domain.Position, error) {
	if fill == nil || fill.Side != domain.SideBuy || fill.OutAmount == 0 {
		return nil, fmt.Errorf("%w: open from non-buy or empty fill", domain.ErrInvariantViolation)
	}
	price := fill.Price
	if price.IsZero() {
		price = execution.FillPrice(fill)
	}
	pos := &domain.Position{
		Token:             fill.Token,
		Pool:              pool,
		State:             domain.PositionOpen,
		EntryPrice:        price,
		EntryAmount:       fill.OutAmount,
		EntryCostLamports: fill.InAmount + fill.CostLamports(),
		HighWaterMark:     price,
		LastPrice:         price,
		OpenedAt:          fill.Timestamp,
		EntrySignature:    fill.Signature,
		ClusterID:         clusterID,
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = m.now()
	}

	m.mu.Lock()
	if _, ok := m.positions[fill.Token]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: position already open for %s", domain.ErrInvariantViolation, fill.Token)
	}
	m.positions[fill.Token] = pos
	snap := pos.Clone()
	m.mu.Unlock()

	m.log.Info().Str("token", pos.Token).Str("entry_price", price.String()).
		Uint64("amount", pos.EntryAmount).Msg("position opened")
	m.emit(Event{Kind: EventOpened, Position: snap})
	return snap, nil
}

// Add folds a further buy fill into token's live position, such as a hedged
// sibling that landed after the winning buy. The entry price becomes the
// average over both fills and the exit sells the combined amount.
func (m *Manager) Add(fill *domain.Fill) (*domain.Position, error) {
	if fill == nil || fill.Side != domain.SideBuy || fill.OutAmount == 0 {
		return nil, fmt.Errorf("%w: add from non-buy or empty fill", domain.ErrInvariantViolation)
	}
	price := fill.Price
	if price.IsZero() {
		price = execution.FillPrice(fill)
	}

	m.mu.Lock()
	pos, ok := m.positions[fill.Token]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: no position to add %s to", domain.ErrInvariantViolation, fill.Token)
	}
	amount := pos.EntryAmount + fill.OutAmount
	pos.EntryPrice = pos.EntryPrice.Mul(domain.Uint64(pos.EntryAmount)).
		Add(price.Mul(domain.Uint64(fill.OutAmount))).
		Div(domain.Uint64(amount))
	pos.EntryAmount = amount
	pos.EntryCostLamports += fill.InAmount + fill.CostLamports()
	pos.HighWaterMark = decimal.Max(pos.HighWaterMark, pos.EntryPrice)
	snap := pos.Clone()
	m.mu.Unlock()

	m.log.Warn().Str("token", fill.Token).Str("signature", fill.Signature).
		Uint64("added", fill.OutAmount).Uint64("amount", snap.EntryAmount).Msg("buy added to position")
	return snap, nil
}

// Restore installs positions loaded at startup. CLOSED entries are ignored.
func (m *Manager) Restore(positions []*domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		if p.State == domain.PositionClosed {
			continue
		}
		m.positions[p.Token] = p.Clone()
	}
}

// Positions returns copies of OPEN and EXITING positions ordered by open time.
func (m *Manager) Positions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Get returns a copy of token's live position.
func (m *Manager) Get(token string) (*domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[token]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Closed returns recently closed positions, oldest first.
func (m *Manager) Closed() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, len(m.closed))
	for i, p := range m.closed {
		out[i] = p.Clone()
	}
	return out
}

// Tick evaluates every live position once. Exits run inline; a position
// whose exit is still running from an earlier tick is skipped.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	tokens := make([]string, 0, len(m.positions))
	for token := range m.positions {
		if !m.inflight[token] {
			tokens = append(tokens, token)
		}
	}
	m.mu.Unlock()
	sort.Strings(tokens)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallelism)
	for _, token := range tokens {
		g.Go(func() error {
			m.evaluate(gctx, token, now)
			return nil
		})
	}
	return g.Wait()
}

// Run ticks every PollInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx, m.now()); err != nil && ctx.Err() == nil {
				m.log.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

func (m *Manager) evaluate(ctx context.Context, token string, now time.Time) {
	m.mu.Lock()
	pos, ok := m.positions[token]
	if !ok || m.inflight[token] {
		m.mu.Unlock()
		return
	}
	m.inflight[token] = true
	state := pos.State
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, token)
		m.mu.Unlock()
	}()

	if state == domain.PositionOpen {
		snap, err := m.prices.Snapshot(ctx, token)
		if err != nil {
			m.log.Warn().Err(err).Str("token", token).Msg("price unavailable")
			snap = nil
		}
		reason, detail := m.check(token, snap, now)
		if reason == "" {
			return
		}
		m.mu.Lock()
		pos.State = domain.PositionExiting
		pos.ExitReason = reason
		pos.ExitDetail = detail
		pos.ExitStartedAt = now
		cp := pos.Clone()
		m.mu.Unlock()
		m.log.Info().Str("token", token).Str("reason", string(reason)).Str("detail", detail).Msg("exit triggered")
		m.emit(Event{Kind: EventExiting, Position: cp})
	}
	m.exit(ctx, token, now)
}

// check updates the high-water mark and returns the first exit trigger,
// in order: emergency, take-profit, stop-loss, trailing stop, max hold.
// snap may be nil when the price is unavailable; only max hold applies then.
func (m *Manager) check(token string, snap *domain.MarketSnapshot, now time.Time) (domain.ExitReason, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.positions[token]

	if snap != nil {
		price := snap.PriceLamports
		if price.IsPositive() {
			pos.LastPrice = price
			if price.GreaterThan(pos.HighWaterMark) {
				pos.HighWaterMark = price
			}
		}

		renounced := snap.MintAuthorityRenounced && snap.FreezeAuthorityRenounced
		was, seen := m.renounced[token]
		if !seen {
			m.renounced[token] = renounced
		}
		liq, _ := snap.LiquidityUSD.Float64()
		switch {
		case liq < m.cfg.RugLiquidityUSD:
			return domain.ExitEmergency, fmt.Sprintf("liquidity $%.0f below $%.0f", liq, m.cfg.RugLiquidityUSD)
		case seen && was && !renounced:
			return domain.ExitEmergency, "authority no longer renounced"
		case price.IsPositive() && drop(pos.HighWaterMark, price).GreaterThanOrEqual(frac(m.cfg.RugDrop)):
			return domain.ExitEmergency, fmt.Sprintf("price %s fell %s%% from high %s",
				price, drop(pos.HighWaterMark, price).Mul(decimal.NewFromInt(100)).StringFixed(1), pos.HighWaterMark)
		}

		if price.IsPositive() {
			one := decimal.NewFromInt(1)
			entry := pos.EntryPrice
			if tp := entry.Mul(one.Add(frac(m.cfg.TakeProfit))); price.GreaterThanOrEqual(tp) {
				return domain.ExitTakeProfit, fmt.Sprintf("price %s >= %s", price, tp)
			}
			if sl := entry.Mul(one.Sub(frac(m.cfg.StopLoss))); price.LessThanOrEqual(sl) {
				return domain.ExitStopLoss, fmt.Sprintf("price %s <= %s", price, sl)
			}
			armed := pos.HighWaterMark.GreaterThanOrEqual(entry.Mul(one.Add(frac(m.cfg.TrailActivation))))
			if stop := pos.HighWaterMark.Mul(one.Sub(frac(m.cfg.Trail))); armed && price.LessThan(stop) {
				return domain.ExitTrailingStop, fmt.Sprintf("price %s < %s (high %s)", price, stop, pos.HighWaterMark)
			}
		}
	}

	if held := now.Sub(pos.OpenedAt); held >= m.cfg.MaxHold {
		return domain.ExitMaxHold, fmt.Sprintf("held %s", held.Round(time.Second))
	}
	return "", ""
}

func frac(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func drop(high, price decimal.Decimal) decimal.Decimal {
	if !high.IsPositive() {
		return decimal.Zero
	}
	return high.Sub(price).Div(high)
}

// exit sells the whole position. Failure leaves it EXITING for the next tick.
func (m *Manager) exit(ctx context.Context, token string, now time.Time) {
	m.mu.Lock()
	pos, ok := m.positions[token]
	if !ok {
		m.mu.Unlock()
		return
	}
	pos.ExitAttempts++
	intent := &domain.TradeIntent{
		ID:            uuid.NewString(),
		Token:         pos.Token,
		Pool:          pos.Pool,
		Side:          domain.SideSell,
		AmountIn:      pos.EntryAmount,
		Emergency:     pos.Emergency(),
		PriorAttempts: pos.ExitAttempts - 1,
		CreatedAt:     now,
	}
	attempt := pos.ExitAttempts
	m.mu.Unlock()

	ectx := ctx
	if m.cfg.ExitTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, m.cfg.ExitTimeout)
		defer cancel()
	}
	res, err := m.exec.Execute(ectx, intent)
	if err != nil {
		m.log.Warn().Err(err).Str("token", token).Int("attempt", attempt).Bool("emergency", intent.Emergency).Msg("exit failed, retrying next tick")
		m.mu.Lock()
		cp := pos.Clone()
		m.mu.Unlock()
		m.emit(Event{Kind: EventExitFailed, Position: cp, Err: err})
		return
	}

	m.Close(token, res.Fill)
}

// Close settles token's position against a sell fill. It also serves late
// sell fills reported by the router.
func (m *Manager) Close(token string, fill *domain.Fill) bool {
	m.mu.Lock()
	pos, ok := m.positions[token]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if pos.ExitReason == "" {
		pos.ExitReason = domain.ExitEmergency
		pos.ExitDetail = "sold outside the exit policy"
	}
	pos.State = domain.PositionClosed
	pos.ExitPrice = fill.Price
	pos.ExitSignature = fill.Signature
	pos.ClosedAt = fill.Timestamp
	if pos.ClosedAt.IsZero() {
		pos.ClosedAt = m.now()
	}
	pos.RealizedPnL = RealizedPnL(pos, fill)

	delete(m.positions, token)
	delete(m.renounced, token)
	m.closed = append(m.closed, pos)
	if m.cfg.History > 0 && len(m.closed) > m.cfg.History {
		m.closed = m.closed[len(m.closed)-m.cfg.History:]
	}
	cp := pos.Clone()
	m.mu.Unlock()

	if m.ledger != nil {
		if err := m.ledger.Release(token); err != nil {
			m.log.Error().Err(err).Str("token", token).Msg("release exposure")
		}
	}
	m.log.Info().Str("token", token).Str("reason", string(cp.ExitReason)).
		Str("pnl_lamports", cp.RealizedPnL.String()).Msg("position closed")
	m.emit(Event{Kind: EventClosed, Position: cp, Fill: fill})
	return true
}

// RealizedPnL is sell proceeds minus entry cost and exit fees, in lamports.
func RealizedPnL(pos *domain.Position, exit *domain.Fill) decimal.Decimal {
	proceeds := decimal.NewFromInt(int64(exit.OutAmount))
	cost := decimal.NewFromInt(int64(pos.EntryCostLamports))
	fees := decimal.NewFromInt(int64(exit.CostLamports()))
	return proceeds.Sub(cost).Sub(fees)
}

func (m *Manager) emit(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}
