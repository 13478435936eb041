package settlement

import (
	"math/big"
	"testing"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
	"github.com/stretchr/testify/require"
)

func TestStarkSigner_PublicKeyOfOneIsGenerator(t *testing.T) {
	s, err := NewStarkSigner("0x1")
	require.NoError(t, err)
	require.Equal(t, "0x1ef15c18599971b7beced415a40f0c7deacfd9b0d1819e03d723d8bc943cfca", s.PublicKey().String())
}

func TestStarkSigner_RejectsBadKeys(t *testing.T) {
	for _, k := range []string{"", "0x0", "nothex"} {
		_, err := NewStarkSigner(k)
		require.Error(t, err, k)
	}
}

func TestStarkSigner_SignatureVerifies(t *testing.T) {
	const key = "0x2dccce1da22003777062ee0870e9881b460a8b7eca276870f57c601f182136c"
	s, err := NewStarkSigner(key)
	require.NoError(t, err)

	hash, err := ParseFelt("0x6fea80189363a786037ed3e7ba546dad0ef7de49fccae0e31eb658b7dd4ea76")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		sig, err := s.Sign(hash)
		require.NoError(t, err)
		require.Len(t, sig, 2)
		require.True(t, verify(t, key, feltToBig(hash), feltToBig(sig[0]), feltToBig(sig[1])))
	}
}

func verify(t *testing.T, keyHex string, z, r, s *big.Int) bool {
	t.Helper()
	n := fr.Modulus()
	keyFelt, err := ParseFelt(keyHex)
	require.NoError(t, err)

	_, g := starkcurve.Generators()
	var q starkcurve.G1Affine
	q.ScalarMultiplication(&g, feltToBig(keyFelt))

	w := new(big.Int).ModInverse(s, n)
	u1 := new(big.Int).Mul(z, w)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, n)

	var p1, p2, res starkcurve.G1Affine
	p1.ScalarMultiplication(&g, u1)
	p2.ScalarMultiplication(&q, u2)
	var sum starkcurve.G1Jac
	sum.FromAffine(&p1)
	sum.AddMixed(&p2)
	res.FromJacobian(&sum)

	return res.X.BigInt(new(big.Int)).Cmp(r) == 0
}

func TestGenerateStarkSigner(t *testing.T) {
	s, hexKey, err := GenerateStarkSigner()
	require.NoError(t, err)

	again, err := NewStarkSigner(hexKey)
	require.NoError(t, err)
	require.Equal(t, s.PublicKey().String(), again.PublicKey().String())

	other, _, err := GenerateStarkSigner()
	require.NoError(t, err)
	require.NotEqual(t, s.PublicKey().String(), other.PublicKey().String())
}
