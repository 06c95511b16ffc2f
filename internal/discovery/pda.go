package discovery

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("no viable bump seed")

const pdaMarker = "ProgramDerivedAddress"

// FindProgramAddress derives a Program Derived Address: the first bump from 255 down
// whose hash of seeds||bump||program||marker is not a valid ed25519 point.
func FindProgramAddress(seeds [][]byte, program solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program[:])
		h.Write([]byte(pdaMarker))

		var sum [32]byte
		copy(sum[:], h.Sum(nil))
		if !isOnCurve(sum[:]) {
			return solanago.PublicKeyFromBytes(sum[:]), uint8(bump), nil
		}
	}
	return solanago.PublicKey{}, 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// AssociatedTokenAddress returns the SPL associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], solanago.TokenProgramID[:], mint[:]},
		solanago.SPLAssociatedTokenAccountProgramID,
	)
	return addr, err
}

// CreatorVault returns the pump.fun fee vault of a creator.
func CreatorVault(creator, program solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte("creator-vault"), creator[:]}, program)
	return addr, err
}
