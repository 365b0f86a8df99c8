package market

import (
	"context"
	"encoding/binary"
	"fmt"

	"solana-cluster-sniper/internal/solana"
)

// SPL mint account layout.
const (
	mintAccountSize       = 82
	mintAuthorityOption   = 0
	mintDecimals          = 44
	freezeAuthorityOption = 46
)

// MintInfo is the decoded SPL mint state relevant to safety checks.
type MintInfo struct {
	Decimals                 uint8
	MintAuthorityRenounced   bool
	FreezeAuthorityRenounced bool
}

// ParseMint decodes an SPL token mint account.
func ParseMint(data []byte) (*MintInfo, error) {
	if len(data) < mintAccountSize {
		return nil, fmt.Errorf("mint account has %d bytes", len(data))
	}
	return &MintInfo{
		Decimals:                 data[mintDecimals],
		MintAuthorityRenounced:   binary.LittleEndian.Uint32(data[mintAuthorityOption:]) == 0,
		FreezeAuthorityRenounced: binary.LittleEndian.Uint32(data[freezeAuthorityOption:]) == 0,
	}, nil
}

// FetchMint reads and decodes a mint account.
func FetchMint(ctx context.Context, rpc solana.RPCClient, mint string) (*MintInfo, error) {
	accts, err := rpc.GetMultipleAccounts(ctx, []string{mint})
	if err != nil {
		return nil, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if len(accts) == 0 || accts[0] == nil {
		return nil, fmt.Errorf("mint %s not found", mint)
	}
	return ParseMint(accts[0].Data)
}
