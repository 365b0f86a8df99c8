package execution

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
	"solana-cluster-sniper/internal/solana"
)

// PathDryRun marks fills that were built but never sent.
const PathDryRun domain.Path = "dry_run"

// DefaultJitoURL is the mainnet block engine.
const DefaultJitoURL = "https://mainnet.block-engine.jito.wtf/api/v1"

// Submission is a transaction accepted by the network or block engine.
type Submission struct {
	Signature   string
	Endpoint    string
	ExpectedOut uint64
	FeeLamports uint64
	TipLamports uint64
	Simulated   bool
}

// Submitter is one execution path.
type Submitter interface {
	Path() domain.Path
	Submit(ctx context.Context, intent *domain.TradeIntent, p Params) (*Submission, error)
}

// Sender submits raw transactions and names the endpoint used.
type Sender interface {
	SendVia(ctx context.Context, raw []byte, opts solana.SendOptions) (string, string, error)
}

// SendPath submits through the RPC endpoint pool.
type SendPath struct {
	path       domain.Path
	builders   []Builder
	send       Sender
	opts       solana.SendOptions
	noPriority bool
}

// NewDirectPath sends Raydium swaps with preflight skipped.
func NewDirectPath(b Builder, send Sender) *SendPath {
	return &SendPath{path: domain.PathDirect, builders: []Builder{b}, send: send, opts: solana.SendOptions{SkipPreflight: true}}
}

// NewAggregatorPath sends Jupiter swaps with preflight skipped.
func NewAggregatorPath(b Builder, send Sender) *SendPath {
	return &SendPath{path: domain.PathAggregator, builders: []Builder{b}, send: send, opts: solana.SendOptions{SkipPreflight: true}}
}

// NewRPCPath is the plain fallback: preflight on and no priority fee.
func NewRPCPath(builders []Builder, send Sender) *SendPath {
	return &SendPath{path: domain.PathRPC, builders: builders, send: send, noPriority: true}
}

func (s *SendPath) Path() domain.Path { return s.path }

func (s *SendPath) Submit(ctx context.Context, intent *domain.TradeIntent, p Params) (*Submission, error) {
	if s.noPriority {
		p.PriorityFee = 0
	}
	tx, err := firstBuilt(ctx, s.builders, intent, p)
	if err != nil {
		return nil, err
	}
	sig, endpoint, err := s.send.SendVia(ctx, tx.Raw, s.opts)
	if err != nil {
		return nil, err
	}
	if sig == "" {
		sig = tx.Signature
	}
	return &Submission{
		Signature:   sig,
		Endpoint:    endpoint,
		ExpectedOut: tx.ExpectedOut,
		FeeLamports: tx.FeeLamports,
	}, nil
}

// BundleSender submits transaction bundles to a block engine.
type BundleSender interface {
	SendBundle(ctx context.Context, txs [][]byte) (string, error)
}

// BundlePath submits the swap plus a tip transfer as one Jito bundle.
type BundlePath struct {
	builders []Builder
	engine   BundleSender
	chain    BlockhashSource
	signer   solana.Signer
	tips     *TipPolicy
}

// NewBundlePath creates a BundlePath using the first builder that can serve an intent.
func NewBundlePath(builders []Builder, engine BundleSender, chain BlockhashSource, signer solana.Signer, tips *TipPolicy) *BundlePath {
	return &BundlePath{builders: builders, engine: engine, chain: chain, signer: signer, tips: tips}
}

func (b *BundlePath) Path() domain.Path { return domain.PathBundle }

func (b *BundlePath) Submit(ctx context.Context, intent *domain.TradeIntent, p Params) (*Submission, error) {
	if p.TipLamports == 0 {
		return nil, skipped("no tip")
	}
	tx, err := firstBuilt(ctx, b.builders, intent, p)
	if err != nil {
		return nil, err
	}
	account, err := b.tips.Account()
	if err != nil {
		return nil, err
	}
	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}
	owner := b.signer.PublicKey()
	tipTx, _, err := solana.BuildTransaction(b.signer, blockhash, []solana.Instruction{
		solana.Transfer(owner, account, p.TipLamports),
	})
	if err != nil {
		return nil, err
	}
	id, err := b.engine.SendBundle(ctx, [][]byte{tx.Raw, tipTx})
	if err != nil {
		return nil, err
	}
	return &Submission{
		Signature:   tx.Signature,
		Endpoint:    "jito:" + id,
		ExpectedOut: tx.ExpectedOut,
		FeeLamports: tx.FeeLamports,
		TipLamports: p.TipLamports,
	}, nil
}

// DryRunPath builds and signs the swap but never sends it.
type DryRunPath struct {
	builders []Builder
}

// NewDryRunPath creates a DryRunPath.
func NewDryRunPath(builders []Builder) *DryRunPath {
	return &DryRunPath{builders: builders}
}

func (d *DryRunPath) Path() domain.Path { return PathDryRun }

func (d *DryRunPath) Submit(ctx context.Context, intent *domain.TradeIntent, p Params) (*Submission, error) {
	tx, err := firstBuilt(ctx, d.builders, intent, p)
	if err != nil {
		return nil, err
	}
	return &Submission{
		Signature:   tx.Signature,
		Endpoint:    "dry-run",
		ExpectedOut: tx.ExpectedOut,
		FeeLamports: tx.FeeLamports,
		Simulated:   true,
	}, nil
}

// JitoClient calls the block engine bundle API.
type JitoClient struct {
	url  string
	http *httpx.Client
	id   atomic.Uint64
}

// NewJitoClient creates a client. An empty baseURL uses mainnet.
func NewJitoClient(baseURL string, client *httpx.Client) *JitoClient {
	if baseURL == "" {
		baseURL = DefaultJitoURL
	}
	return &JitoClient{url: strings.TrimRight(baseURL, "/") + "/bundles", http: client}
}

// SendBundle submits txs atomically and returns the bundle id.
func (j *JitoClient) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = base64.StdEncoding.EncodeToString(tx)
	}
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      j.id.Add(1),
		"method":  "sendBundle",
		"params":  []interface{}{encoded, map[string]string{"encoding": "base64"}},
	}
	var resp struct {
		Result string           `json:"result"`
		Error  *solana.RPCError `json:"error"`
	}
	if err := j.http.PostJSON(ctx, j.url, nil, req, &resp); err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	return resp.Result, nil
}
