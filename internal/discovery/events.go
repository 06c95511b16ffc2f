package discovery

import solanago "github.com/gagliardetto/solana-go"

// CreateEvent is a decoded pump.fun token launch.
type CreateEvent struct {
	Name         string
	Symbol       string
	URI          string
	Mint         solanago.PublicKey
	BondingCurve solanago.PublicKey
	User         solanago.PublicKey
	// Creator is zero on program versions that do not emit it; User is the creator then.
	Creator solanago.PublicKey

	Signature string
	Slot      int64
	// Trade is the first trade on the new curve in the same transaction, if any.
	Trade *TradeEvent
}

// CreatorKey returns the account credited as creator.
func (e *CreateEvent) CreatorKey() solanago.PublicKey {
	if e.Creator.IsZero() {
		return e.User
	}
	return e.Creator
}

// TradeEvent is a decoded pump.fun buy or sell.
type TradeEvent struct {
	Mint                 solanago.PublicKey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solanago.PublicKey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// createEventFields is the borsh layout shared by every program version.
type createEventFields struct {
	Name         string
	Symbol       string
	URI          string
	Mint         solanago.PublicKey
	BondingCurve solanago.PublicKey
	User         solanago.PublicKey
}
