// Package raydium decodes Raydium AMM V4 pool and OpenBook market accounts
// and builds swap_base_in instructions against them.
package raydium

import (
	"encoding/binary"
	"errors"
	"fmt"

	"solana-cluster-sniper/internal/solana"
)

// Program addresses.
const (
	AMMProgramID      = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	OpenBookProgramID = "srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX"
)

// Account sizes.
const (
	PoolAccountSize   = 752
	MarketAccountSize = 388
	// TokenAccountAmountOffset is where an SPL token account stores its u64 balance.
	TokenAccountAmountOffset = 64
)

// AmmInfo (LIQUIDITY_STATE_LAYOUT_V4) field offsets.
const (
	offStatus        = 0
	offNonce         = 8
	offBaseDecimal   = 32
	offQuoteDecimal  = 40
	offSwapFeeNum    = 176
	offSwapFeeDen    = 184
	offPoolOpenTime  = 224
	offBaseVault     = 336
	offQuoteVault    = 368
	offBaseMint      = 400
	offQuoteMint     = 432
	offLPMint        = 464
	offOpenOrders    = 496
	offMarketID      = 528
	offMarketProgram = 560
	offTargetOrders  = 592
)

// MARKET_STATE_LAYOUT_V3 offsets (5 byte head padding, then account flags).
const (
	mktOwnAddress   = 13
	mktVaultNonce   = 45
	mktBaseMint     = 53
	mktQuoteMint    = 85
	mktBaseVault    = 117
	mktQuoteVault   = 165
	mktRequestQueue = 221
	mktEventQueue   = 253
	mktBids         = 285
	mktAsks         = 317
)

// SwapBaseInDiscriminator is the AMM V4 instruction tag for exact-input swaps.
const SwapBaseInDiscriminator = 9

// Decoding errors.
var (
	ErrShortAccount  = errors.New("account data too short")
	ErrMintNotInPool = errors.New("mint is not a side of the pool")
)

func readKey(data []byte, off int) solana.PublicKey {
	return solana.PublicKeyFromBytes(data[off : off+32])
}

func readU64(data []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(data[off : off+8])
}

func need(data []byte, size int, what string) error {
	if len(data) < size {
		return fmt.Errorf("%s: %w (%d < %d)", what, ErrShortAccount, len(data), size)
	}
	return nil
}

// TokenAccountAmount reads the balance of an SPL token account.
func TokenAccountAmount(data []byte) (uint64, error) {
	if err := need(data, TokenAccountAmountOffset+8, "token account"); err != nil {
		return 0, err
	}
	return readU64(data, TokenAccountAmountOffset), nil
}
