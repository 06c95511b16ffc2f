// Package discovery decodes token launches from program log streams.
package discovery

import (
	"bytes"
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// PumpFun is the pump.fun program ID.
const PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Anchor event discriminators: sha256("event:<Name>")[:8].
var (
	createEventDiscriminator = [8]byte{0x1b, 0x72, 0xa9, 0x4d, 0xde, 0xeb, 0x63, 0x76}
	tradeEventDiscriminator  = [8]byte{0xbd, 0xdb, 0x7f, 0xd3, 0x4e, 0xe6, 0x61, 0xee}
)

const (
	invokePrefix = "Program "
	dataPrefix   = "Program data: "
)

// Decoder extracts CreateEvents emitted by one program.
type Decoder struct {
	program string
}

// NewDecoder creates a decoder for program; empty means pump.fun.
func NewDecoder(program string) *Decoder {
	if program == "" {
		program = PumpFun
	}
	return &Decoder{program: program}
}

// Decode returns the launch in ev, if any. Failed transactions never decode.
func (d *Decoder) Decode(ev domain.RawEvent) (*CreateEvent, bool) {
	if ev.Failed {
		return nil, false
	}

	var create *CreateEvent
	var stack []string

	for _, line := range ev.Logs {
		if prog, ok := d.programFrame(line, " invoke ["); ok {
			stack = append(stack, prog)
			continue
		}
		if _, ok := d.programFrame(line, " success"); ok {
			stack = pop(stack)
			continue
		}
		if _, ok := d.programFrame(line, " failed"); ok {
			stack = pop(stack)
			continue
		}

		if !strings.HasPrefix(line, dataPrefix) || len(stack) == 0 || stack[len(stack)-1] != d.program {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len(dataPrefix):]))
		if err != nil || len(data) < 8 {
			continue
		}

		switch {
		case create == nil && bytes.Equal(data[:8], createEventDiscriminator[:]):
			if c, err := decodeCreate(data[8:]); err == nil {
				create = c
			}
		case create != nil && create.Trade == nil && bytes.Equal(data[:8], tradeEventDiscriminator[:]):
			if tr, err := decodeTrade(data[8:]); err == nil && tr.Mint.Equals(create.Mint) {
				create.Trade = tr
			}
		}
	}

	if create == nil {
		return nil, false
	}
	create.Signature = ev.Key
	create.Slot = ev.Slot
	observability.RecordDecoded()
	return create, true
}

// programFrame matches "Program <id><suffix>..." lines and returns <id>.
func (d *Decoder) programFrame(line, suffix string) (string, bool) {
	if !strings.HasPrefix(line, invokePrefix) || strings.HasPrefix(line, "Program log:") || strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	rest := line[len(invokePrefix):]
	idx := strings.Index(rest, suffix)
	if idx <= 0 {
		return "", false
	}
	prog := rest[:idx]
	if strings.ContainsRune(prog, ' ') {
		return "", false
	}
	return prog, true
}

func pop(stack []string) []string {
	if len(stack) == 0 {
		return stack
	}
	return stack[:len(stack)-1]
}

func decodeCreate(data []byte) (*CreateEvent, error) {
	dec := bin.NewBorshDecoder(data)
	var f createEventFields
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	ev := &CreateEvent{
		Name:         f.Name,
		Symbol:       f.Symbol,
		URI:          f.URI,
		Mint:         f.Mint,
		BondingCurve: f.BondingCurve,
		User:         f.User,
	}
	if dec.Remaining() >= solanago.PublicKeyLength {
		var creator solanago.PublicKey
		if err := dec.Decode(&creator); err == nil {
			ev.Creator = creator
		}
	}
	return ev, nil
}

func decodeTrade(data []byte) (*TradeEvent, error) {
	var tr TradeEvent
	if err := bin.NewBorshDecoder(data).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}
