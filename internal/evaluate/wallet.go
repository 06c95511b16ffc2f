package evaluate

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrInvalidWalletKey is returned when a wallet secret cannot be used for signing.
var ErrInvalidWalletKey = errors.New("invalid wallet key")

// ParseWalletKey decodes a base58 64-byte ed25519 secret (seed followed by public key)
// and checks that the embedded public key matches the seed.
func ParseWalletKey(s string) (solanago.PrivateKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWalletKey, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidWalletKey, len(raw), ed25519.PrivateKeySize)
	}

	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidWalletKey)
	}
	return solanago.PrivateKey(raw), nil
}
