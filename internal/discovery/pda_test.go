package discovery

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProgramAddress_MatchesSDK(t *testing.T) {
	program := solanago.MustPublicKeyFromBase58(PumpFun)
	mint := solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	seeds := [][]byte{[]byte("bonding-curve"), mint[:]}
	got, bump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)

	want, wantBump, err := solanago.FindProgramAddress(seeds, program)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, wantBump, bump)
	assert.False(t, isOnCurve(got[:]))
}

func TestAssociatedTokenAddress_MatchesSDK(t *testing.T) {
	owner := solanago.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY")
	mint := solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	got, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	want, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCreatorVault_Deterministic(t *testing.T) {
	program := solanago.MustPublicKeyFromBase58(PumpFun)
	creator := solanago.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY")

	a, err := CreatorVault(creator, program)
	require.NoError(t, err)
	b, err := CreatorVault(creator, program)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, creator, a)
}
