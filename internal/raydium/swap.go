package raydium

import (
	"encoding/binary"

	"solana-cluster-sniper/internal/solana"
)

// SwapParams describes one exact-input swap through an AMM V4 pool.
type SwapParams struct {
	Pool        *Pool
	Market      *Market
	Owner       solana.PublicKey
	Source      solana.PublicKey // owner's token account debited
	Destination solana.PublicKey // owner's token account credited
	AmountIn    uint64
	MinOut      uint64
}

// SwapBaseIn builds the swap_base_in instruction.
func SwapBaseIn(p SwapParams) (solana.Instruction, error) {
	authority, err := Authority()
	if err != nil {
		return solana.Instruction{}, err
	}

	data := make([]byte, 17)
	data[0] = SwapBaseInDiscriminator
	binary.LittleEndian.PutUint64(data[1:], p.AmountIn)
	binary.LittleEndian.PutUint64(data[9:], p.MinOut)

	w := func(pk solana.PublicKey) solana.AccountMeta {
		return solana.AccountMeta{PublicKey: pk, IsWritable: true}
	}
	r := func(pk solana.PublicKey) solana.AccountMeta {
		return solana.AccountMeta{PublicKey: pk}
	}

	return solana.Instruction{
		ProgramID: solana.MustPublicKey(AMMProgramID),
		Accounts: []solana.AccountMeta{
			r(solana.MustPublicKey(solana.TokenProgramID)),
			w(p.Pool.ID),
			r(authority),
			w(p.Pool.OpenOrders),
			w(p.Pool.TargetOrders),
			w(p.Pool.BaseVault),
			w(p.Pool.QuoteVault),
			r(p.Market.Program),
			w(p.Market.ID),
			w(p.Market.Bids),
			w(p.Market.Asks),
			w(p.Market.EventQueue),
			w(p.Market.BaseVault),
			w(p.Market.QuoteVault),
			r(p.Market.VaultSigner),
			w(p.Source),
			w(p.Destination),
			{PublicKey: p.Owner, IsSigner: true},
		},
		Data: data,
	}, nil
}
