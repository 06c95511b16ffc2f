package evaluate

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWalletKey(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	got, err := ParseWalletKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())

	tampered := make([]byte, len(key))
	copy(tampered, key)
	tampered[63] ^= 0xff

	tests := []struct {
		name string
		in   string
	}{
		{"not base58", "0OIl"},
		{"short", base58.Encode(key[:32])},
		{"mismatched public key", base58.Encode(tampered)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWalletKey(tt.in)
			assert.ErrorIs(t, err, ErrInvalidWalletKey)
		})
	}
}
