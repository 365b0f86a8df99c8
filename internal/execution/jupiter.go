package execution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
	"solana-cluster-sniper/internal/solana"
)

// DefaultJupiterURL is the v6 swap API.
const DefaultJupiterURL = "https://quote-api.jup.ag/v6"

type jupiterQuote struct {
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

type jupiterSwapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// JupiterBuilder routes through the Jupiter aggregator.
type JupiterBuilder struct {
	baseURL string
	http    *httpx.Client
	signer  solana.Signer
	cuLimit uint32
}

// NewJupiterBuilder creates a builder. An empty baseURL uses the public API.
func NewJupiterBuilder(baseURL string, client *httpx.Client, signer solana.Signer, cuLimit uint32) *JupiterBuilder {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	if cuLimit == 0 {
		cuLimit = 200_000
	}
	return &JupiterBuilder{baseURL: strings.TrimRight(baseURL, "/"), http: client, signer: signer, cuLimit: cuLimit}
}

func (b *JupiterBuilder) Name() string { return "jupiter" }

// Build fetches a quote, asks Jupiter to assemble the swap and signs it.
func (b *JupiterBuilder) Build(ctx context.Context, intent *domain.TradeIntent, p Params) (*BuiltTx, error) {
	in, out := solana.WrappedSOLMint, intent.Token
	if intent.Side == domain.SideSell {
		in, out = out, in
	}
	q := url.Values{}
	q.Set("inputMint", in)
	q.Set("outputMint", out)
	q.Set("amount", strconv.FormatUint(intent.AmountIn, 10))
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))

	var raw json.RawMessage
	if err := b.http.GetJSON(ctx, b.baseURL+"/quote?"+q.Encode(), nil, &raw); err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	var quote jupiterQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	expected, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil || expected == 0 {
		return nil, skipped("jupiter has no route for %s", intent.Token)
	}
	minOut, _ := strconv.ParseUint(quote.OtherAmountThreshold, 10, 64)
	impactBps := 0
	if pct, err := strconv.ParseFloat(quote.PriceImpactPct, 64); err == nil {
		impactBps = int(pct * 10_000)
	}
	if p.MaxImpactBps > 0 && impactBps > p.MaxImpactBps {
		return nil, skipped("impact %d bps over %d", impactBps, p.MaxImpactBps)
	}

	req := jupiterSwapRequest{
		QuoteResponse:                 raw,
		UserPublicKey:                 b.signer.PublicKey().String(),
		WrapAndUnwrapSol:              true,
		ComputeUnitPriceMicroLamports: p.PriorityFee,
	}
	var resp jupiterSwapResponse
	if err := b.http.PostJSON(ctx, b.baseURL+"/swap", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("jupiter swap: %w", err)
	}
	unsigned, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap transaction: %w", err)
	}
	signed, sig, err := solana.SignSerialized(unsigned, b.signer)
	if err != nil {
		return nil, err
	}
	return &BuiltTx{
		Raw:         signed,
		Signature:   sig,
		ExpectedOut: expected,
		MinOut:      minOut,
		ImpactBps:   impactBps,
		FeeLamports: solana.PriorityFeeLamports(p.PriorityFee, b.cuLimit),
	}, nil
}
