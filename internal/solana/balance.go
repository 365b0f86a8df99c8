package solana

import "math/big"

// BalanceDelta is the net effect of a transaction on one owner.
type BalanceDelta struct {
	// Tokens is the change in owner's balance of the mint, in raw units.
	Tokens *big.Int
	// Lamports is the change in the owner account's SOL balance, fee included.
	Lamports int64
	Fee      uint64
}

// OwnerDelta computes owner's token and lamport balance changes for mint
// from transaction metadata. ok is false when metadata is missing or owner
// is not among the account keys.
func OwnerDelta(tx *Transaction, owner, mint string) (BalanceDelta, bool) {
	if tx == nil || tx.Meta == nil || tx.Message == nil {
		return BalanceDelta{}, false
	}
	idx := -1
	for i, k := range tx.Message.AccountKeys {
		if k == owner {
			idx = i
			break
		}
	}
	if idx < 0 {
		return BalanceDelta{}, false
	}

	d := BalanceDelta{Tokens: new(big.Int), Fee: tx.Meta.Fee}
	if idx < len(tx.Meta.PreBalances) && idx < len(tx.Meta.PostBalances) {
		d.Lamports = int64(tx.Meta.PostBalances[idx]) - int64(tx.Meta.PreBalances[idx])
	}
	sum := func(balances []TokenBalance) *big.Int {
		total := new(big.Int)
		for _, b := range balances {
			if b.Owner == owner && b.Mint == mint {
				total.Add(total, new(big.Int).SetUint64(b.Amount))
			}
		}
		return total
	}
	d.Tokens.Sub(sum(tx.Meta.PostTokenBalances), sum(tx.Meta.PreTokenBalances))
	return d, true
}

// TradedMints returns the mints whose balance changed for owner, excluding
// wrapped SOL, in first-seen order.
func TradedMints(tx *Transaction, owner string) []string {
	if tx == nil || tx.Meta == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]TokenBalance{tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances} {
		for _, b := range list {
			if b.Owner != owner || b.Mint == WrappedSOLMint || seen[b.Mint] {
				continue
			}
			seen[b.Mint] = true
			out = append(out, b.Mint)
		}
	}
	return out
}
