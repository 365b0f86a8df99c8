package risk

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
)

// Birdeye checks mint/freeze authority and holder concentration.
type Birdeye struct {
	baseURL  string
	apiKey   string
	maxTop10 float64
	client   *httpx.Client
	log      zerolog.Logger
}

func NewBirdeye(baseURL, apiKey string, maxTop10Pct float64, client *httpx.Client, log zerolog.Logger) *Birdeye {
	return &Birdeye{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, maxTop10: maxTop10Pct, client: client, log: log}
}

func (s *Birdeye) Name() string { return "birdeye" }

func (s *Birdeye) Check(ctx context.Context, token string) domain.Verdict {
	var resp struct {
		Success bool `json:"success"`
		Data    *struct {
			MintAuthorityEnabled   bool     `json:"isMintAuthorityEnabled"`
			FreezeAuthorityEnabled bool     `json:"isFreezeAuthorityEnabled"`
			Top10HolderPercent     *float64 `json:"top10HolderPercent"`
		} `json:"data"`
	}
	u := s.baseURL + "/defi/token_security?address=" + url.QueryEscape(token)
	headers := map[string]string{"X-API-KEY": s.apiKey, "x-chain": "solana"}
	if !lookup(ctx, s.client, s.log, s.Name(), u, headers, &resp) || resp.Data == nil {
		return domain.VerdictUnavailable
	}
	d := resp.Data
	switch {
	case d.MintAuthorityEnabled:
		return failed(s.log, s.Name(), token, "mint_authority")
	case d.FreezeAuthorityEnabled:
		return failed(s.log, s.Name(), token, "freeze_authority")
	case s.maxTop10 > 0 && d.Top10HolderPercent != nil && *d.Top10HolderPercent > s.maxTop10:
		return failed(s.log, s.Name(), token, "top10_concentration")
	}
	return domain.VerdictPass
}

// TokenSniffer fails tokens scoring below a threshold.
type TokenSniffer struct {
	baseURL  string
	minScore int
	client   *httpx.Client
	log      zerolog.Logger
}

func NewTokenSniffer(baseURL string, minScore int, client *httpx.Client, log zerolog.Logger) *TokenSniffer {
	return &TokenSniffer{baseURL: strings.TrimRight(baseURL, "/"), minScore: minScore, client: client, log: log}
}

func (s *TokenSniffer) Name() string { return "tokensniffer" }

func (s *TokenSniffer) Check(ctx context.Context, token string) domain.Verdict {
	var resp struct {
		Score *int `json:"score"`
	}
	if !lookup(ctx, s.client, s.log, s.Name(), s.baseURL+"/"+token, nil, &resp) {
		return domain.VerdictUnavailable
	}
	if resp.Score != nil && *resp.Score < s.minScore {
		return failed(s.log, s.Name(), token, "low_score")
	}
	return domain.VerdictPass
}

// RugCheck fails tokens reported as rugged or scam.
type RugCheck struct {
	baseURL string
	client  *httpx.Client
	log     zerolog.Logger
}

func NewRugCheck(baseURL string, client *httpx.Client, log zerolog.Logger) *RugCheck {
	return &RugCheck{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

func (s *RugCheck) Name() string { return "rugcheck" }

func (s *RugCheck) Check(ctx context.Context, token string) domain.Verdict {
	var resp struct {
		Status string `json:"status"`
		Rugged bool   `json:"rugged"`
	}
	if !lookup(ctx, s.client, s.log, s.Name(), s.baseURL+"/tokens/"+token, nil, &resp) {
		return domain.VerdictUnavailable
	}
	if resp.Rugged || isRugStatus(resp.Status) {
		return failed(s.log, s.Name(), token, "rug")
	}
	return domain.VerdictPass
}

// GoPlus fails honeypots and tokens with trading halted.
type GoPlus struct {
	baseURL string
	client  *httpx.Client
	log     zerolog.Logger
}

func NewGoPlus(baseURL string, client *httpx.Client, log zerolog.Logger) *GoPlus {
	return &GoPlus{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

func (s *GoPlus) Name() string { return "goplus" }

func (s *GoPlus) Check(ctx context.Context, token string) domain.Verdict {
	var resp struct {
		Code   int `json:"code"`
		Result map[string]struct {
			Honeypot      string `json:"is_honeypot"`
			TradingHalted string `json:"trading_halted"`
		} `json:"result"`
	}
	u := s.baseURL + "/token_security/solana?contract_addresses=" + url.QueryEscape(token)
	if !lookup(ctx, s.client, s.log, s.Name(), u, nil, &resp) || len(resp.Result) == 0 {
		return domain.VerdictUnavailable
	}
	for _, r := range resp.Result {
		if r.Honeypot == "1" {
			return failed(s.log, s.Name(), token, "honeypot")
		}
		if r.TradingHalted == "1" {
			return failed(s.log, s.Name(), token, "trading_halted")
		}
	}
	return domain.VerdictPass
}

// RugDoc fails tokens whose scan status is rug or scam.
type RugDoc struct {
	baseURL string
	client  *httpx.Client
	log     zerolog.Logger
}

func NewRugDoc(baseURL string, client *httpx.Client, log zerolog.Logger) *RugDoc {
	return &RugDoc{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

func (s *RugDoc) Name() string { return "rugdoc" }

func (s *RugDoc) Check(ctx context.Context, token string) domain.Verdict {
	var resp struct {
		Status string `json:"status"`
	}
	if !lookup(ctx, s.client, s.log, s.Name(), s.baseURL+"/scan/"+token, nil, &resp) {
		return domain.VerdictUnavailable
	}
	if isRugStatus(resp.Status) {
		return failed(s.log, s.Name(), token, "rug")
	}
	return domain.VerdictPass
}

// Helius fails tokens with no on-chain activity within maxIdle.
type Helius struct {
	baseURL string
	apiKey  string
	maxIdle time.Duration
	client  *httpx.Client
	log     zerolog.Logger
	now     func() time.Time
}

func NewHelius(baseURL, apiKey string, maxIdle time.Duration, client *httpx.Client, log zerolog.Logger) *Helius {
	return &Helius{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, maxIdle: maxIdle, client: client, log: log, now: time.Now}
}

func (s *Helius) Name() string { return "helius" }

func (s *Helius) Check(ctx context.Context, token string) domain.Verdict {
	var txs []struct {
		Timestamp int64 `json:"timestamp"`
	}
	u := s.baseURL + "/v0/addresses/" + token + "/transactions?limit=1&api-key=" + url.QueryEscape(s.apiKey)
	if !lookup(ctx, s.client, s.log, s.Name(), u, nil, &txs) || len(txs) == 0 || txs[0].Timestamp == 0 {
		return domain.VerdictUnavailable
	}
	if s.maxIdle > 0 && s.now().Sub(time.Unix(txs[0].Timestamp, 0)) > s.maxIdle {
		return failed(s.log, s.Name(), token, "idle")
	}
	return domain.VerdictPass
}

func isRugStatus(s string) bool {
	switch strings.ToUpper(s) {
	case "RUG", "RUGGED", "SCAM":
		return true
	}
	return false
}
