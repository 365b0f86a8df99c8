package cluster

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// WalletConfig sets the smart-money threshold.
type WalletConfig struct {
	MinWinRate float64
	MinTrades  int
}

// DefaultWalletConfig returns 60% over at least 5 trades.
func DefaultWalletConfig() WalletConfig {
	return WalletConfig{MinWinRate: 0.60, MinTrades: 5}
}

type lot struct {
	tokens uint64
	cost   decimal.Decimal // lamports
}

type holdingKey struct {
	wallet string
	token  string
}

// WalletBook tracks per-wallet win rates from FIFO cost basis.
// A sell realizes one trade against the oldest open lots for that token.
type WalletBook struct {
	cfg WalletConfig

	mu      sync.RWMutex
	wallets map[string]*domain.Wallet
	lots    map[holdingKey][]lot
	seen    map[string]struct{}
}

// NewWalletBook creates an empty book.
func NewWalletBook(cfg WalletConfig) *WalletBook {
	return &WalletBook{
		cfg:     cfg,
		wallets: make(map[string]*domain.Wallet),
		lots:    make(map[holdingKey][]lot),
		seen:    make(map[string]struct{}),
	}
}

// Load seeds stats restored from storage. Existing entries are replaced.
func (b *WalletBook) Load(wallets []*domain.Wallet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range wallets {
		cp := *w
		b.wallets[w.Address] = &cp
	}
}

// Apply folds one event into the book. Replayed events are ignored and
// reported as false. Plain transfers only touch activity timestamps.
func (b *WalletBook) Apply(ev *domain.TransferEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[ev.Key()]; dup {
		return false
	}
	b.seen[ev.Key()] = struct{}{}

	w := b.wallets[ev.Wallet]
	if w == nil {
		w = &domain.Wallet{Address: ev.Wallet, FirstSeen: ev.Timestamp}
		b.wallets[ev.Wallet] = w
	}
	if ev.Timestamp.After(w.LastActive) {
		w.LastActive = ev.Timestamp
	}

	key := holdingKey{wallet: ev.Wallet, token: ev.Token}
	switch ev.Direction {
	case domain.DirectionBuy:
		if ev.TokenAmount > 0 {
			b.lots[key] = append(b.lots[key], lot{tokens: ev.TokenAmount, cost: domain.Uint64(ev.QuoteLamports)})
		}
	case domain.DirectionSell:
		b.realize(w, key, ev)
	}
	return true
}

func (b *WalletBook) realize(w *domain.Wallet, key holdingKey, ev *domain.TransferEvent) {
	lots := b.lots[key]
	if len(lots) == 0 || ev.TokenAmount == 0 {
		// No known cost basis.
		return
	}

	remaining := ev.TokenAmount
	matched := uint64(0)
	cost := decimal.Zero
	for len(lots) > 0 && remaining > 0 {
		l := &lots[0]
		take := l.tokens
		if take > remaining {
			take = remaining
		}
		part := l.cost.Mul(domain.Uint64(take)).Div(domain.Uint64(l.tokens))
		cost = cost.Add(part)
		l.cost = l.cost.Sub(part)
		l.tokens -= take
		remaining -= take
		matched += take
		if l.tokens == 0 {
			lots = lots[1:]
		}
	}
	if len(lots) == 0 {
		delete(b.lots, key)
	} else {
		b.lots[key] = lots
	}

	// Only the portion with a known basis counts toward proceeds.
	proceeds := domain.Uint64(ev.QuoteLamports).Mul(domain.Uint64(matched)).Div(domain.Uint64(ev.TokenAmount))
	w.TradeCount++
	if proceeds.GreaterThan(cost) {
		w.ProfitableCount++
	}
}

// Wallet returns a copy of the wallet's stats.
func (b *WalletBook) Wallet(addr string) (domain.Wallet, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.wallets[addr]
	if !ok {
		return domain.Wallet{}, false
	}
	return *w, true
}

// IsSmartMoney reports whether addr clears the configured threshold.
func (b *WalletBook) IsSmartMoney(addr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.wallets[addr]
	return ok && w.IsSmartMoney(b.cfg.MinWinRate, b.cfg.MinTrades)
}

// SmartFraction returns the share of members that are smart money.
func (b *WalletBook) SmartFraction(members []string) float64 {
	if len(members) == 0 {
		return 0
	}
	n := 0
	for _, m := range members {
		if b.IsSmartMoney(m) {
			n++
		}
	}
	return float64(n) / float64(len(members))
}

// Dirty returns copies of wallets active at or after since, for persistence.
func (b *WalletBook) Dirty(since time.Time) []*domain.Wallet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.Wallet
	for _, w := range b.wallets {
		if !w.LastActive.Before(since) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out
}

// Forget drops dedup state for event keys no longer replayable.
func (b *WalletBook) Forget(keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.seen, k)
	}
}
