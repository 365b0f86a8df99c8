package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/config"
	"solana-cluster-sniper/internal/solana"
)

// ErrNoSigner is returned for live trading without a configured key.
var ErrNoSigner = errors.New("no signing key configured")

// loadSigner resolves the trading key. Dry runs without a key sign with a
// throwaway keypair, which is enough to build transactions.
func loadSigner(cfg config.SolanaConfig, dryRun bool, log zerolog.Logger) (*solana.Keypair, error) {
	switch {
	case cfg.Keypair != "":
		return solana.KeypairFromBase58(cfg.Keypair)
	case cfg.KeypairFile != "":
		return readKeypairFile(cfg.KeypairFile)
	case dryRun:
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate dry-run key: %w", err)
		}
		kp, err := solana.KeypairFromBytes(seed)
		if err != nil {
			return nil, err
		}
		log.Warn().Str("owner", kp.PublicKey().String()).Msg("dry run with an ephemeral key")
		return kp, nil
	default:
		return nil, ErrNoSigner
	}
}

// readKeypairFile reads the JSON byte array written by solana-keygen.
func readKeypairFile(path string) (*solana.Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair %s: byte %d out of range", path, i)
		}
		b[i] = byte(v)
	}
	return solana.KeypairFromBytes(b)
}
