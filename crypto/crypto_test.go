package crypto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateKey()
	require.NoError(t, err)

	digest := HashBytes([]byte("hello askchain"))
	sig := Sign(priv, digest)
	require.True(t, Verify(pub, digest, sig))

	digest[0] ^= 0xFF
	require.False(t, Verify(pub, digest, sig))
}

func TestIsValidBase64(t *testing.T) {
	require.True(t, IsValidBase64(EncodeBase64([]byte("abc"))))
	require.False(t, IsValidBase64("not base64!!"))
	require.False(t, IsValidBase64(""))
	require.False(t, IsValidBase64("a_b-"))
}

func TestPowOk(t *testing.T) {
	hash := make([]byte, 32)
	binary.BigEndian.PutUint32(hash[:4], 0x0000FFFF)
	require.True(t, PowOk(hash, 16))
	require.False(t, PowOk(hash, 17))
	require.False(t, PowOk(hash, 0))
	require.False(t, PowOk(hash, 33))
}
