// Package exposure tracks capital committed per token and in total. Every
// admission decision happens under one mutex so concurrent reservations
// cannot overshoot a limit.
package exposure

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
)

// Reservation errors.
var (
	ErrTokenBusy    = errors.New("token already holds a reservation")
	ErrTokenLimit   = errors.New("per-token exposure limit")
	ErrGlobalLimit  = errors.New("global exposure limit")
	ErrMaxPositions = errors.New("max open positions")
	ErrZeroAmount   = errors.New("reservation amount is zero")
)

// Config holds exposure limits in lamports.
type Config struct {
	MaxPerToken      uint64
	MaxGlobal        uint64
	MaxOpenPositions int
}

// DefaultConfig allows 2 SOL per token, 5 SOL overall and five positions.
func DefaultConfig() Config {
	return Config{
		MaxPerToken:      2 * domain.LamportsPerSOL,
		MaxGlobal:        5 * domain.LamportsPerSOL,
		MaxOpenPositions: 5,
	}
}

// Reservation is capital held for one token.
type Reservation struct {
	Token     string
	Lamports  uint64
	Committed bool
	CreatedAt time.Time
}

// Totals is a read-only view of the ledger.
type Totals struct {
	CommittedLamports uint64            `json:"committed_lamports"`
	PerToken          map[string]uint64 `json:"per_token"`
	OpenPositions     int               `json:"open_positions"`
}

// Ledger is the exposure book.
type Ledger struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	mu    sync.Mutex
	held  map[string]*Reservation
	total uint64
}

// NewLedger creates an empty ledger.
func NewLedger(cfg Config, log zerolog.Logger) *Ledger {
	return &Ledger{
		cfg:  cfg,
		log:  log.With().Str("component", "exposure").Logger(),
		now:  time.Now,
		held: make(map[string]*Reservation),
	}
}

// Reserve holds lamports for token or reports which limit refused it.
func (l *Ledger) Reserve(token string, lamports uint64) (*Reservation, error) {
	if lamports == 0 {
		return nil, ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[token]; busy {
		return nil, ErrTokenBusy
	}
	if lamports > l.cfg.MaxPerToken {
		return nil, fmt.Errorf("%w: %d > %d", ErrTokenLimit, lamports, l.cfg.MaxPerToken)
	}
	if l.total+lamports > l.cfg.MaxGlobal {
		return nil, fmt.Errorf("%w: %d + %d > %d", ErrGlobalLimit, l.total, lamports, l.cfg.MaxGlobal)
	}
	if len(l.held) >= l.cfg.MaxOpenPositions {
		return nil, fmt.Errorf("%w: %d", ErrMaxPositions, l.cfg.MaxOpenPositions)
	}

	r := &Reservation{Token: token, Lamports: lamports, CreatedAt: l.now()}
	l.held[token] = r
	l.total += lamports
	l.log.Debug().Str("token", token).Uint64("lamports", lamports).Uint64("total", l.total).Msg("reserved")
	cp := *r
	return &cp, nil
}

// Commit settles a reservation to the notional actually filled.
// A fill larger than the reservation is an invariant violation.
func (l *Ledger) Commit(res *Reservation, actualLamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.held[res.Token]
	if !ok {
		return fmt.Errorf("%w: commit for unreserved token %s", domain.ErrInvariantViolation, res.Token)
	}
	if actualLamports > r.Lamports {
		return fmt.Errorf("%w: commit %d exceeds reservation %d", domain.ErrInvariantViolation, actualLamports, r.Lamports)
	}
	l.total -= r.Lamports - actualLamports
	r.Lamports = actualLamports
	r.Committed = true
	return nil
}

// Release frees the token's reservation.
func (l *Ledger) Release(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.held[token]
	if !ok {
		return fmt.Errorf("%w: release for unreserved token %s", domain.ErrInvariantViolation, token)
	}
	l.total -= r.Lamports
	delete(l.held, token)
	l.log.Debug().Str("token", token).Uint64("total", l.total).Msg("released")
	return nil
}

// Restore re-installs committed holdings, used at startup for positions
// that were still open. Limits are not enforced.
func (l *Ledger) Restore(token string, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.held[token]; ok {
		l.total -= r.Lamports
	}
	l.held[token] = &Reservation{Token: token, Lamports: lamports, Committed: true, CreatedAt: l.now()}
	l.total += lamports
}

// Add grows a held token's exposure by capital that was already spent, such
// as a sibling buy that landed after the winning one. Limits are not
// enforced; exceeding them is logged.
func (l *Ledger) Add(token string, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.held[token]
	if !ok {
		return fmt.Errorf("%w: add for unreserved token %s", domain.ErrInvariantViolation, token)
	}
	r.Lamports += lamports
	r.Committed = true
	l.total += lamports
	if r.Lamports > l.cfg.MaxPerToken || l.total > l.cfg.MaxGlobal {
		l.log.Warn().Str("token", token).Uint64("lamports", r.Lamports).Uint64("total", l.total).Msg("exposure above limit after added fill")
	}
	return nil
}

// Holds reports whether token has a reservation.
func (l *Ledger) Holds(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[token]
	return ok
}

// Totals returns a snapshot of committed and reserved exposure.
func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := Totals{
		CommittedLamports: l.total,
		PerToken:          make(map[string]uint64, len(l.held)),
		OpenPositions:     len(l.held),
	}
	for token, r := range l.held {
		t.PerToken[token] = r.Lamports
	}
	return t
}

// Tokens lists tokens with a reservation, sorted.
func (l *Ledger) Tokens() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.held))
	for token := range l.held {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
