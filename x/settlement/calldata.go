package settlement

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/holiman/uint256"
)

// UpdateStateCalldata is the argument struct of the Piltover update_state entrypoint.
type UpdateStateCalldata struct {
	ProgramSnosOutput []*felt.Felt
	ProgramOutput     []*felt.Felt
	OnchainDataHash   *felt.Felt
	OnchainDataSize   *uint256.Int
}

// Felts serializes the calldata the way Cairo serde lays out the struct:
// each array length-prefixed, then the hash, then the u256 as (low, high).
func (c UpdateStateCalldata) Felts() []*felt.Felt {
	out := make([]*felt.Felt, 0, len(c.ProgramSnosOutput)+len(c.ProgramOutput)+5)
	out = append(out, feltFromUint64(uint64(len(c.ProgramSnosOutput))))
	out = append(out, c.ProgramSnosOutput...)
	out = append(out, feltFromUint64(uint64(len(c.ProgramOutput))))
	out = append(out, c.ProgramOutput...)

	hash := c.OnchainDataHash
	if hash == nil {
		hash = new(felt.Felt)
	}
	out = append(out, hash)

	low, high := splitU256(c.OnchainDataSize)
	return append(out, low, high)
}

func splitU256(v *uint256.Int) (low, high *felt.Felt) {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return new(felt.Felt).SetBytes(b[16:]), new(felt.Felt).SetBytes(b[:16])
}

// Call is a single contract invocation.
type Call struct {
	To       *felt.Felt
	Selector *felt.Felt
	Calldata []*felt.Felt
}

// executeCalldata encodes calls for a Cairo 1 account __execute__:
// [n_calls, (to, selector, calldata_len, calldata...)...].
func executeCalldata(calls []Call) []*felt.Felt {
	out := []*felt.Felt{feltFromUint64(uint64(len(calls)))}
	for _, c := range calls {
		out = append(out, c.To, c.Selector, feltFromUint64(uint64(len(c.Calldata))))
		out = append(out, c.Calldata...)
	}
	return out
}
