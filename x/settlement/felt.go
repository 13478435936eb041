package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/crypto"
)

// feltPrime is the Stark field modulus 2^251 + 17*2^192 + 1.
var feltPrime, _ = new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)

// ParseFelt parses a hex (0x-prefixed) or decimal field element. Values outside
// the field are rejected rather than reduced.
func ParseFelt(s string) (*felt.Felt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty felt", ErrDecode)
	}
	n, ok := new(big.Int), false
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = n.SetString(s[2:], 16)
	} else {
		n, ok = n.SetString(s, 10)
	}
	if !ok || n.Sign() < 0 || n.Cmp(feltPrime) >= 0 {
		return nil, fmt.Errorf("%w: invalid felt %q", ErrDecode, s)
	}
	return feltFromBig(n), nil
}

func feltFromBig(n *big.Int) *felt.Felt {
	return new(felt.Felt).SetBytes(n.Bytes())
}

func feltToBig(f *felt.Felt) *big.Int {
	b := f.Bytes()
	return new(big.Int).SetBytes(b[:])
}

func feltFromUint64(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

func feltToUint64(f *felt.Felt) (uint64, error) {
	n := feltToBig(f)
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: felt %s exceeds uint64", ErrDecode, f.String())
	}
	return n.Uint64(), nil
}

// feltFromShortString encodes an ASCII string of at most 31 chars as a felt.
func feltFromShortString(s string) *felt.Felt {
	return new(felt.Felt).SetBytes([]byte(s))
}

// Selector returns sn_keccak(name): keccak-256 truncated to 250 bits.
func Selector(name string) *felt.Felt {
	h := crypto.Keccak256([]byte(name))
	h[0] &= 0x03
	return new(felt.Felt).SetBytes(h)
}

func feltStrings(fs []*felt.Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

func parseFelts(ss []string) ([]*felt.Felt, error) {
	out := make([]*felt.Felt, len(ss))
	for i, s := range ss {
		f, err := ParseFelt(s)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
