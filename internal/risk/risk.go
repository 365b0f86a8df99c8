// Package risk wraps third-party token security APIs. Every lookup reduces
// to a domain.Verdict; transport errors, missing keys and unparseable replies
// are VerdictUnavailable.
package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
)

// Source is one risk provider.
type Source interface {
	Name() string
	Check(ctx context.Context, token string) domain.Verdict
}

// SourceConfig enables and points one provider.
type SourceConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// Config selects providers and their thresholds.
type Config struct {
	Birdeye      SourceConfig
	TokenSniffer SourceConfig
	RugCheck     SourceConfig
	GoPlus       SourceConfig
	RugDoc       SourceConfig
	Helius       SourceConfig

	// MaxTop10HolderPct fails Birdeye tokens whose ten largest holders own
	// more than this share. 0 disables the check.
	MaxTop10HolderPct float64
	MinSnifferScore   int
	// MaxIdle fails tokens whose last on-chain transaction is older than this.
	MaxIdle time.Duration

	Timeout time.Duration
	RPS     float64 // per provider host
	Burst   int
}

// DefaultConfig enables the keyless providers plus Birdeye and Helius when a key is set.
func DefaultConfig() Config {
	return Config{
		Birdeye:         SourceConfig{Enabled: true, BaseURL: "https://public-api.birdeye.so"},
		TokenSniffer:    SourceConfig{Enabled: true, BaseURL: "https://tokensniffer.com/api/v2/tokens/solana"},
		RugCheck:        SourceConfig{Enabled: true, BaseURL: "https://api.rugcheck.xyz/v1"},
		GoPlus:          SourceConfig{Enabled: true, BaseURL: "https://api.gopluslabs.io/api/v1"},
		RugDoc:          SourceConfig{Enabled: false, BaseURL: "https://api.rugdoc.io/v1"},
		Helius:          SourceConfig{Enabled: true, BaseURL: "https://api.helius.xyz"},
		MinSnifferScore: 60,
		MaxIdle:         30 * time.Minute,
		Timeout:         8 * time.Second,
		RPS:             2,
		Burst:           4,
	}
}

// New builds the enabled sources sharing one rate-limited client.
// Birdeye and Helius are skipped without an API key.
func New(cfg Config, log zerolog.Logger) []Source {
	limiter := httpx.NewLimiter(cfg.RPS, cfg.Burst)
	client := httpx.NewClient(cfg.Timeout, httpx.WithLimiter(limiter))
	log = log.With().Str("component", "risk").Logger()

	var out []Source
	if c := cfg.Birdeye; c.Enabled {
		if c.APIKey == "" {
			log.Warn().Msg("birdeye enabled without api key, skipping")
		} else {
			out = append(out, NewBirdeye(c.BaseURL, c.APIKey, cfg.MaxTop10HolderPct, client, log))
		}
	}
	if c := cfg.TokenSniffer; c.Enabled {
		out = append(out, NewTokenSniffer(c.BaseURL, cfg.MinSnifferScore, client, log))
	}
	if c := cfg.RugCheck; c.Enabled {
		out = append(out, NewRugCheck(c.BaseURL, client, log))
	}
	if c := cfg.GoPlus; c.Enabled {
		out = append(out, NewGoPlus(c.BaseURL, client, log))
	}
	if c := cfg.RugDoc; c.Enabled {
		out = append(out, NewRugDoc(c.BaseURL, client, log))
	}
	if c := cfg.Helius; c.Enabled {
		if c.APIKey == "" {
			log.Warn().Msg("helius enabled without api key, skipping")
		} else {
			out = append(out, NewHelius(c.BaseURL, c.APIKey, cfg.MaxIdle, client, log))
		}
	}
	return out
}

// lookup fetches url into out, logging failures as the provider being unavailable.
func lookup(ctx context.Context, client *httpx.Client, log zerolog.Logger, name, url string, headers map[string]string, out interface{}) bool {
	if err := client.GetJSON(ctx, url, headers, out); err != nil {
		log.Debug().Err(err).Str("source", name).Msg("risk source unavailable")
		return false
	}
	return true
}

func failed(log zerolog.Logger, name, token, finding string) domain.Verdict {
	log.Info().Str("source", name).Str("token", token).Str("finding", finding).Msg("risk check failed")
	return domain.VerdictFail
}
