package solana

import (
	"math/big"
	"testing"
)

func TestOwnerDelta(t *testing.T) {
	tx := &Transaction{
		Message: &TransactionMessage{AccountKeys: []string{"wallet1", "pool", "ata"}},
		Meta: &TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{2_000_000_000, 10, 20},
			PostBalances: []uint64{1_499_995_000, 10, 20},
			PreTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: "MintA", Owner: "wallet1", Amount: 100},
				{AccountIndex: 1, Mint: "MintA", Owner: "pool", Amount: 1_000_000},
			},
			PostTokenBalances: []TokenBalance{
				{AccountIndex: 2, Mint: "MintA", Owner: "wallet1", Amount: 42_100},
				{AccountIndex: 1, Mint: "MintA", Owner: "pool", Amount: 958_000},
				{AccountIndex: 3, Mint: WrappedSOLMint, Owner: "wallet1", Amount: 0},
			},
		},
	}

	d, ok := OwnerDelta(tx, "wallet1", "MintA")
	if !ok {
		t.Fatal("expected delta")
	}
	if d.Tokens.Cmp(big.NewInt(42_000)) != 0 {
		t.Errorf("tokens = %s, want 42000", d.Tokens)
	}
	if d.Lamports != -500_005_000 {
		t.Errorf("lamports = %d, want -500005000", d.Lamports)
	}
	if d.Fee != 5000 {
		t.Errorf("fee = %d", d.Fee)
	}

	if _, ok := OwnerDelta(tx, "stranger", "MintA"); ok {
		t.Error("expected no delta for unknown owner")
	}
	if _, ok := OwnerDelta(&Transaction{}, "wallet1", "MintA"); ok {
		t.Error("expected no delta without metadata")
	}

	mints := TradedMints(tx, "wallet1")
	if len(mints) != 1 || mints[0] != "MintA" {
		t.Errorf("traded mints = %v, want [MintA]", mints)
	}
}
