package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PauseConfig controls the automatic trading pause.
type PauseConfig struct {
	MaxConsecutiveFailures int
	MaxFailuresPerHour     int
	Cooldown               time.Duration

	// Below MinBalanceLamports trading pauses for Cooldown; below
	// CriticalBalanceLamports it stays paused until resumed by hand.
	MinBalanceLamports      uint64
	CriticalBalanceLamports uint64
	BalanceInterval         time.Duration
}

// DefaultPauseConfig pauses after 3 failures in a row or 10 in an hour.
func DefaultPauseConfig() PauseConfig {
	return PauseConfig{
		MaxConsecutiveFailures:  3,
		MaxFailuresPerHour:      10,
		Cooldown:                15 * time.Minute,
		MinBalanceLamports:      50_000_000,
		CriticalBalanceLamports: 10_000_000,
		BalanceInterval:         time.Minute,
	}
}

// PauseStatus is a snapshot of the pause state.
type PauseStatus struct {
	Paused              bool      `json:"paused"`
	Reason              string    `json:"reason,omitempty"`
	Until               time.Time `json:"until,omitempty"` // zero while paused means manual resume
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailuresLastHour    int       `json:"failures_last_hour"`
}

// AutoPause stops new entries after repeated execution failures or when
// the wallet runs low.
type AutoPause struct {
	cfg PauseConfig
	log zerolog.Logger
	now func() time.Time

	mu          sync.Mutex
	paused      bool
	reason      string
	until       time.Time
	consecutive int
	failures    []time.Time
}

// NewAutoPause creates an unpaused AutoPause.
func NewAutoPause(cfg PauseConfig, log zerolog.Logger) *AutoPause {
	return &AutoPause{
		cfg: cfg,
		log: log.With().Str("component", "autopause").Logger(),
		now: time.Now,
	}
}

// Allowed reports whether new trades may start. An expired timed pause is
// lifted here.
func (p *AutoPause) Allowed() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused && !p.until.IsZero() && !p.now().Before(p.until) {
		p.log.Info().Str("reason", p.reason).Msg("pause expired, resuming")
		p.resume()
	}
	return !p.paused, p.reason
}

// RecordSuccess clears the consecutive failure count.
func (p *AutoPause) RecordSuccess() {
	p.mu.Lock()
	p.consecutive = 0
	p.mu.Unlock()
}

// RecordFailure counts a failed execution and pauses when a threshold is hit.
func (p *AutoPause) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.consecutive++
	p.failures = append(p.failures, now)
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(p.failures) && p.failures[i].Before(cutoff) {
		i++
	}
	p.failures = p.failures[i:]

	switch {
	case p.cfg.MaxConsecutiveFailures > 0 && p.consecutive >= p.cfg.MaxConsecutiveFailures:
		p.pause(fmt.Sprintf("%d consecutive failures", p.consecutive), p.cfg.Cooldown)
	case p.cfg.MaxFailuresPerHour > 0 && len(p.failures) >= p.cfg.MaxFailuresPerHour:
		p.pause(fmt.Sprintf("%d failures in the last hour", len(p.failures)), 2*p.cfg.Cooldown)
	}
}

// Pause stops trading for d, or until Resume when d is zero.
func (p *AutoPause) Pause(reason string, d time.Duration) {
	p.mu.Lock()
	p.pause(reason, d)
	p.mu.Unlock()
}

func (p *AutoPause) pause(reason string, d time.Duration) {
	var until time.Time
	if d > 0 {
		until = p.now().Add(d)
	}
	// A manual pause is never shortened into a timed one.
	if p.paused && p.until.IsZero() && !until.IsZero() {
		return
	}
	p.paused = true
	p.reason = reason
	p.until = until
	p.log.Warn().Str("reason", reason).Time("until", until).Msg("trading paused")
}

// Resume lifts any pause.
func (p *AutoPause) Resume() {
	p.mu.Lock()
	p.resume()
	p.mu.Unlock()
}

func (p *AutoPause) resume() {
	p.paused = false
	p.reason = ""
	p.until = time.Time{}
	p.consecutive = 0
}

// CheckBalance pauses when the wallet balance is under the configured floors.
func (p *AutoPause) CheckBalance(lamports uint64) {
	switch {
	case lamports < p.cfg.CriticalBalanceLamports:
		p.Pause(fmt.Sprintf("balance %d below critical %d", lamports, p.cfg.CriticalBalanceLamports), 0)
	case lamports < p.cfg.MinBalanceLamports:
		p.Pause(fmt.Sprintf("balance %d below minimum %d", lamports, p.cfg.MinBalanceLamports), p.cfg.Cooldown)
	}
}

// Status returns the current state.
func (p *AutoPause) Status() PauseStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PauseStatus{
		Paused:              p.paused,
		Reason:              p.reason,
		Until:               p.until,
		ConsecutiveFailures: p.consecutive,
		FailuresLastHour:    len(p.failures),
	}
}

// BalanceReader returns an account's lamport balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// WatchBalance checks owner's balance every BalanceInterval until ctx ends.
func (p *AutoPause) WatchBalance(ctx context.Context, rpc BalanceReader, owner string) error {
	interval := p.cfg.BalanceInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		bal, err := rpc.GetBalance(ctx, owner)
		if err != nil {
			p.log.Warn().Err(err).Msg("balance check failed")
		} else {
			p.CheckBalance(bal)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
