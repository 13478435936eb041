package settlement

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
)

// Signer signs transaction hashes on behalf of an account.
type Signer interface {
	PublicKey() *felt.Felt
	Sign(hash *felt.Felt) ([]*felt.Felt, error)
}

// StarkSigner is an ECDSA signer over the STARK curve.
type StarkSigner struct {
	key    *big.Int
	public *felt.Felt
}

var _ Signer = (*StarkSigner)(nil)

// r and w must fit in 251 bits for the on-chain verifier.
var sigBound = new(big.Int).Lsh(big.NewInt(1), 251)

func NewStarkSigner(privateKeyHex string) (*StarkSigner, error) {
	f, err := ParseFelt(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	key := feltToBig(f)
	if key.Sign() == 0 || key.Cmp(fr.Modulus()) >= 0 {
		return nil, errors.New("private key out of range")
	}

	_, g := starkcurve.Generators()
	var pub starkcurve.G1Affine
	pub.ScalarMultiplication(&g, key)

	return &StarkSigner{
		key:    key,
		public: feltFromBig(pub.X.BigInt(new(big.Int))),
	}, nil
}

// PublicKey is the x coordinate of key*G.
func (s *StarkSigner) PublicKey() *felt.Felt {
	return s.public
}

// Sign returns (r, s) for hash using a random nonce.
func (s *StarkSigner) Sign(hash *felt.Felt) ([]*felt.Felt, error) {
	n := fr.Modulus()
	z := feltToBig(hash)
	_, g := starkcurve.Generators()

	for {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, fmt.Errorf("nonce: %w", err)
		}
		if k.Sign() == 0 {
			continue
		}

		var kg starkcurve.G1Affine
		kg.ScalarMultiplication(&g, k)
		r := kg.X.BigInt(new(big.Int))
		if r.Sign() == 0 || r.Cmp(sigBound) >= 0 {
			continue
		}

		// w = k / (z + r*d), s = 1/w
		t := new(big.Int).Mul(r, s.key)
		t.Add(t, z).Mod(t, n)
		if t.Sign() == 0 {
			continue
		}
		w := new(big.Int).ModInverse(t, n)
		w.Mul(w, k).Mod(w, n)
		if w.Sign() == 0 || w.Cmp(sigBound) >= 0 {
			continue
		}
		sig := new(big.Int).ModInverse(w, n)

		return []*felt.Felt{feltFromBig(r), feltFromBig(sig)}, nil
	}
}

// GenerateStarkSigner creates a signer with a fresh random private key and
// returns it along with the key in hex.
func GenerateStarkSigner() (*StarkSigner, string, error) {
	upper := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
	k, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return nil, "", fmt.Errorf("private key: %w", err)
	}
	k.Add(k, big.NewInt(1))
	hexKey := "0x" + k.Text(16)
	s, err := NewStarkSigner(hexKey)
	if err != nil {
		return nil, "", err
	}
	return s, hexKey, nil
}
