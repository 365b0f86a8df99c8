package execution

import (
	"math"
	"sync/atomic"

	"solana-cluster-sniper/internal/solana"
)

// JitoTipAccounts are the mainnet block engine tip receivers.
var JitoTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// TipConfig bounds bundle tips in lamports.
type TipConfig struct {
	Default    uint64
	Min        uint64
	Max        uint64
	Panic      uint64
	Dynamic    bool // aggressive requests tip Max, others the band midpoint
	Escalation float64
	Accounts   []string
}

// DefaultTipConfig tips 0.0001 SOL, 0.0003 SOL in a panic.
func DefaultTipConfig() TipConfig {
	return TipConfig{
		Default:    100_000,
		Min:        10_000,
		Max:        1_000_000,
		Panic:      300_000,
		Escalation: 1.5,
		Accounts:   JitoTipAccounts,
	}
}

// TipPolicy picks the tip for each bundle attempt.
type TipPolicy struct {
	cfg  TipConfig
	next atomic.Uint64
}

// NewTipPolicy creates a policy.
func NewTipPolicy(cfg TipConfig) *TipPolicy {
	if len(cfg.Accounts) == 0 {
		cfg.Accounts = JitoTipAccounts
	}
	return &TipPolicy{cfg: cfg}
}

// Tip returns the tip for round, escalating by Escalation per round and
// never leaving [Min, Max].
func (p *TipPolicy) Tip(panic, aggressive bool, round int) uint64 {
	low := p.cfg.Min
	high := p.cfg.Max
	if high < low {
		high = low
	}
	base := p.cfg.Default
	if panic {
		base = p.cfg.Panic
	}

	tip := base
	if p.cfg.Dynamic {
		if aggressive {
			tip = high
		} else {
			tip = (low + high) / 2
		}
	}
	if round > 0 && p.cfg.Escalation > 1 {
		tip = uint64(math.Round(float64(tip) * math.Pow(p.cfg.Escalation, float64(round))))
	}
	if tip < low {
		return low
	}
	if tip > high {
		return high
	}
	return tip
}

// Account returns the next tip receiver, rotating through the configured set.
func (p *TipPolicy) Account() (solana.PublicKey, error) {
	i := p.next.Add(1) - 1
	return solana.ParsePublicKey(p.cfg.Accounts[i%uint64(len(p.cfg.Accounts))])
}
