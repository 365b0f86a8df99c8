package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"solana-cluster-sniper/internal/solana"
)

// ErrNoEndpoint is returned when every endpoint failed or has an open breaker.
var ErrNoEndpoint = errors.New("no rpc endpoint available")

// Endpoint is a named RPC client.
type Endpoint struct {
	Name   string
	Client solana.RPCClient
}

// BreakerConfig controls per-endpoint circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
}

// DefaultBreakerConfig opens after 3 consecutive failures for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenTimeout: 30 * time.Second, Interval: time.Minute}
}

// EndpointState describes one endpoint for the status page.
type EndpointState struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

type endpoint struct {
	name    string
	client  solana.RPCClient
	breaker *gobreaker.CircuitBreaker
}

// EndpointPool fails over from the primary endpoint to fallbacks, skipping
// endpoints whose breaker is open.
type EndpointPool struct {
	endpoints []*endpoint
	log       zerolog.Logger
}

// NewEndpointPool creates a pool; the first endpoint is the primary.
func NewEndpointPool(eps []Endpoint, cfg BreakerConfig, log zerolog.Logger) *EndpointPool {
	p := &EndpointPool{log: log.With().Str("component", "endpoints").Logger()}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	for _, e := range eps {
		st := gobreaker.Settings{
			Name:     e.Name,
			Interval: cfg.Interval,
			Timeout:  cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			IsSuccessful: healthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.log.Warn().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state change")
			},
		}
		p.endpoints = append(p.endpoints, &endpoint{name: e.Name, client: e.Client, breaker: gobreaker.NewCircuitBreaker(st)})
	}
	return p
}

// healthy decides what counts against an endpoint. Node-level rejections and
// caller cancellation say nothing about the endpoint itself.
func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var rpcErr *solana.RPCError
	return errors.As(err, &rpcErr)
}

// Do runs fn against endpoints in order until one succeeds and returns that
// endpoint's name. A JSON-RPC error is returned without failover.
func (p *EndpointPool) Do(ctx context.Context, fn func(ctx context.Context, c solana.RPCClient) error) (string, error) {
	var errs []error
	for _, ep := range p.endpoints {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_, err := ep.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx, ep.client)
		})
		if err == nil {
			return ep.name, nil
		}
		var rpcErr *solana.RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return ep.name, err
		}
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.log.Warn().Err(err).Str("endpoint", ep.name).Msg("endpoint failed, trying next")
		}
		errs = append(errs, fmt.Errorf("%s: %w", ep.name, err))
	}
	return "", fmt.Errorf("%w: %w", ErrNoEndpoint, errors.Join(errs...))
}

// Status reports breaker state per endpoint.
func (p *EndpointPool) Status() []EndpointState {
	out := make([]EndpointState, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, EndpointState{
			Name:                ep.name,
			State:               ep.breaker.State().String(),
			ConsecutiveFailures: ep.breaker.Counts().ConsecutiveFailures,
		})
	}
	return out
}

// SendVia submits raw and also reports which endpoint accepted it.
func (p *EndpointPool) SendVia(ctx context.Context, raw []byte, opts solana.SendOptions) (string, string, error) {
	var sig string
	name, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		sig, err = c.SendTransaction(ctx, raw, opts)
		return err
	})
	return sig, name, err
}

func (p *EndpointPool) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var tx *solana.Transaction
	_, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		tx, err = c.GetTransaction(ctx, signature)
		return err
	})
	return tx, err
}

func (p *EndpointPool) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	var sigs []solana.SignatureInfo
	_, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		sigs, err = c.GetSignaturesForAddress(ctx, address, opts)
		return err
	})
	return sigs, err
}

func (p *EndpointPool) GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	var accts []*solana.AccountInfo
	_, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		accts, err = c.GetMultipleAccounts(ctx, pubkeys)
		return err
	})
	return accts, err
}

func (p *EndpointPool) GetLatestBlockhash(ctx context.Context) (string, error) {
	var hash string
	_, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		hash, err = c.GetLatestBlockhash(ctx)
		return err
	})
	return hash, err
}

func (p *EndpointPool) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	sig, _, err := p.SendVia(ctx, raw, opts)
	return sig, err
}

func (p *EndpointPool) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	var statuses []*solana.SignatureStatus
	_, err := p.Do(ctx, func(ctx context.Context, c solana.RPCClient) error {
		var err error
		statuses, err = c.GetSignatureStatuses(ctx, signatures)
		return err
	})
	return statuses, err
}

var _ solana.RPCClient = (*EndpointPool)(nil)
