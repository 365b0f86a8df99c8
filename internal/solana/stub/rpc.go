// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"sync"

	"github.com/mr-tron/base58"

	"solana-cluster-sniper/internal/solana"
)

// ErrSendRejected is returned for payloads too short to carry a signature.
var ErrSendRejected = errors.New("transaction rejected")

// RPCClient is a scriptable in-memory RPC.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo
	Statuses     map[string]*solana.SignatureStatus
	Blockhash    string

	// SendErr is returned from every SendTransaction call when set.
	SendErr error
	// AutoLand marks sent transactions as confirmed immediately.
	AutoLand bool

	Sent [][]byte
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient returns an empty stub that lands sent transactions.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Blockhash:    "11111111111111111111111111111111",
		AutoLand:     true,
	}
}

func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

func (c *RPCClient) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.AccountInfo, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = c.Accounts[pk]
	}
	return out, nil
}

func (c *RPCClient) GetLatestBlockhash(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Blockhash, nil
}

// SendTransaction records raw and returns the first signature it carries.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if len(raw) < 65 {
		return "", ErrSendRejected
	}
	c.Sent = append(c.Sent, append([]byte(nil), raw...))
	sig := base58.Encode(raw[1:65])
	if c.AutoLand {
		c.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
	}
	return sig, nil
}

func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, s := range signatures {
		out[i] = c.Statuses[s]
	}
	return out, nil
}

// SetStatus records the status GetSignatureStatuses reports for sig.
func (c *RPCClient) SetStatus(sig string, st *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[sig] = st
}

// AddTransaction stores tx under its signature.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	c.Transactions[tx.Signature] = tx
	c.mu.Unlock()
}

// AddSignatures sets the signature history for address.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	c.Signatures[address] = sigs
	c.mu.Unlock()
}

// SetAccount stores account data under pubkey.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	c.Accounts[pubkey] = info
	c.mu.Unlock()
}

// SentCount returns how many transactions were submitted.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
