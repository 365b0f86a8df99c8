package raydium

import (
	"encoding/binary"

	"solana-cluster-sniper/internal/solana"
)

// Market holds the OpenBook accounts an AMM V4 swap must pass through.
type Market struct {
	ID               solana.PublicKey
	Program          solana.PublicKey
	VaultSignerNonce uint64
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	RequestQueue     solana.PublicKey
	EventQueue       solana.PublicKey
	Bids             solana.PublicKey
	Asks             solana.PublicKey
	VaultSigner      solana.PublicKey
}

// ParseMarket decodes a market account and derives its vault signer.
func ParseMarket(id, program solana.PublicKey, data []byte) (*Market, error) {
	if err := need(data, MarketAccountSize, "openbook market"); err != nil {
		return nil, err
	}
	m := &Market{
		ID:               id,
		Program:          program,
		VaultSignerNonce: readU64(data, mktVaultNonce),
		BaseMint:         readKey(data, mktBaseMint),
		QuoteMint:        readKey(data, mktQuoteMint),
		BaseVault:        readKey(data, mktBaseVault),
		QuoteVault:       readKey(data, mktQuoteVault),
		RequestQueue:     readKey(data, mktRequestQueue),
		EventQueue:       readKey(data, mktEventQueue),
		Bids:             readKey(data, mktBids),
		Asks:             readKey(data, mktAsks),
	}
	signer, err := VaultSigner(id, m.VaultSignerNonce, program)
	if err != nil {
		return nil, err
	}
	m.VaultSigner = signer
	return m, nil
}

// VaultSigner derives the market vault signer from its stored nonce.
func VaultSigner(market solana.PublicKey, nonce uint64, program solana.PublicKey) (solana.PublicKey, error) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	return solana.CreateProgramAddress([][]byte{market[:], n[:]}, program)
}
