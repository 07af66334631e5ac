package walletkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	message := []byte("spend these coins")
	sig := priv.Sign(message)

	pub := priv.PublicKey()
	assert.True(t, Verify(pub, message, sig))
	assert.False(t, Verify(pub, []byte("a different message"), sig))
}

func TestVerifyBytesRejectsMalformedPubkey(t *testing.T) {
	assert.False(t, VerifyBytes([]byte("too short"), []byte("msg"), []byte("sig")))
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	raw := priv.PublicKey().Bytes()
	assert.Len(t, raw, 64)

	pub, err := PublicKeyFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey().Address(), pub.Address())
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromHex(priv.Hex())
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey().Address(), restored.PublicKey().Address())
}
