package raydium

import (
	"time"

	"solana-cluster-sniper/internal/amm"
	"solana-cluster-sniper/internal/solana"
)

// Pool is the subset of an AMM V4 account needed to quote and swap.
type Pool struct {
	ID            solana.PublicKey
	Status        uint64
	Nonce         uint64
	BaseDecimals  uint8
	QuoteDecimals uint8
	Fee           amm.Fee
	OpenTime      time.Time

	BaseVault     solana.PublicKey
	QuoteVault    solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	LPMint        solana.PublicKey
	OpenOrders    solana.PublicKey
	MarketID      solana.PublicKey
	MarketProgram solana.PublicKey
	TargetOrders  solana.PublicKey
}

// ParsePool decodes an AMM V4 account. A zero swap fee falls back to the standard 25 bps.
func ParsePool(id solana.PublicKey, data []byte) (*Pool, error) {
	if err := need(data, PoolAccountSize, "amm pool"); err != nil {
		return nil, err
	}
	p := &Pool{
		ID:            id,
		Status:        readU64(data, offStatus),
		Nonce:         readU64(data, offNonce),
		BaseDecimals:  uint8(readU64(data, offBaseDecimal)),
		QuoteDecimals: uint8(readU64(data, offQuoteDecimal)),
		Fee: amm.Fee{
			Numerator:   readU64(data, offSwapFeeNum),
			Denominator: readU64(data, offSwapFeeDen),
		},
		BaseVault:     readKey(data, offBaseVault),
		QuoteVault:    readKey(data, offQuoteVault),
		BaseMint:      readKey(data, offBaseMint),
		QuoteMint:     readKey(data, offQuoteMint),
		LPMint:        readKey(data, offLPMint),
		OpenOrders:    readKey(data, offOpenOrders),
		MarketID:      readKey(data, offMarketID),
		MarketProgram: readKey(data, offMarketProgram),
		TargetOrders:  readKey(data, offTargetOrders),
	}
	if p.Fee.Denominator == 0 || p.Fee.Numerator >= p.Fee.Denominator {
		p.Fee = amm.RaydiumFee
	}
	if ts := readU64(data, offPoolOpenTime); ts > 0 {
		p.OpenTime = time.Unix(int64(ts), 0).UTC()
	}
	return p, nil
}

// Authority returns the program-wide AMM authority PDA.
func Authority() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("amm authority")},
		solana.MustPublicKey(AMMProgramID),
	)
	return addr, err
}

// Vaults returns (source, destination) pool vaults for a swap paying inputMint.
func (p *Pool) Vaults(inputMint solana.PublicKey) (solana.PublicKey, solana.PublicKey, error) {
	switch inputMint {
	case p.BaseMint:
		return p.BaseVault, p.QuoteVault, nil
	case p.QuoteMint:
		return p.QuoteVault, p.BaseVault, nil
	}
	return solana.PublicKey{}, solana.PublicKey{}, ErrMintNotInPool
}

// OtherMint returns the mint on the opposite side of mint.
func (p *Pool) OtherMint(mint solana.PublicKey) (solana.PublicKey, error) {
	switch mint {
	case p.BaseMint:
		return p.QuoteMint, nil
	case p.QuoteMint:
		return p.BaseMint, nil
	}
	return solana.PublicKey{}, ErrMintNotInPool
}
