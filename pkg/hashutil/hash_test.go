package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSha256dDeterministic(t *testing.T) {
	a := Sha256d("hello")
	b := Sha256d("hello")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sha256d("world"))
	assert.Len(t, a, 64)
}

func TestBuildMessageIsHexDigestBytes(t *testing.T) {
	msg := BuildMessage("payload")
	assert.Equal(t, []byte(Sha256d("payload")), msg)
}

func TestAddressFromPubkeyRoundTrips(t *testing.T) {
	pub := make([]byte, 64)
	for i := range pub {
		pub[i] = byte(i)
	}
	addr1 := AddressFromPubkey(pub)
	addr2 := AddressFromPubkey(pub)
	assert.Equal(t, addr1, addr2)

	version, payload, err := Base58CheckDecode(addr1)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x00), version)
	assert.Len(t, payload, 20)
}

func TestBase58CheckDecodeRejectsCorruption(t *testing.T) {
	addr := AddressFromPubkey(make([]byte, 64))
	corrupt := []byte(addr)
	corrupt[0] ^= 0xff
	_, _, err := Base58CheckDecode(string(corrupt))
	assert.Error(t, err)
}
