package solana

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signer signs transaction messages for a single fee payer.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) ([]byte, error)
}

// Keypair is an in-process ed25519 signer.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

// KeypairFromBase58 loads a 64-byte secret key in the base58 form wallets export.
func KeypairFromBase58(secret string) (*Keypair, error) {
	b, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return KeypairFromBytes(b)
}

// KeypairFromBytes accepts a 64-byte secret key or a 32-byte seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	var priv ed25519.PrivateKey
	switch len(b) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(append([]byte(nil), b...))
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(b)
	default:
		return nil, fmt.Errorf("secret key has %d bytes", len(b))
	}
	return &Keypair{
		priv: priv,
		pub:  PublicKeyFromBytes(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the signer address.
func (k *Keypair) PublicKey() PublicKey {
	return k.pub
}

// Sign signs a serialized message.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

var _ Signer = (*Keypair)(nil)
