// Package walletkey wraps secp256k1 key generation and ECDSA
// signing/verification, plus the hex persistence format the node's
// wallet state is saved in.
package walletkey

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/chainkit/ledger/pkg/hashutil"
)

// PrivateKey is a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GeneratePrivateKey produces a fresh random private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("walletkey: generate private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex loads a 32-byte private key from its hex encoding,
// the format the wallet persists keys in.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("walletkey: decode private key hex: %w", err)
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("walletkey: private key must be 32 bytes, got %d", len(data))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(data)}, nil
}

// Hex returns the private key's 32-byte hex encoding.
func (pk *PrivateKey) Hex() string {
	return hex.EncodeToString(pk.key.Serialize())
}

// PublicKey derives the matching public key.
func (pk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: pk.key.PubKey()}
}

// Sign signs message by hashing it with SHA-256 and running ECDSA over
// the resulting 32-byte digest — the Go analogue of the reference
// implementation's library-side message hashing.
func (pk *PrivateKey) Sign(message []byte) []byte {
	digest := sha256Sum(message)
	sig := ecdsa.Sign(pk.key, digest[:])
	return sig.Serialize()
}

// PublicKey is a secp256k1 public key, serialized the uncompressed
// 64-byte X||Y way the reference wallet's verifying keys use.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Bytes returns the raw 64-byte X||Y public key encoding — no leading
// format byte, matching the pubkey bytes pushed onto the script stack
// and the ones OP_ADDR hashes into an address.
func (pub *PublicKey) Bytes() []byte {
	full := pub.key.SerializeUncompressed()
	return full[1:]
}

// PublicKeyFromBytes parses a raw 64-byte X||Y public key.
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	if len(data) != 64 {
		return nil, fmt.Errorf("walletkey: public key must be 64 bytes, got %d", len(data))
	}
	full := make([]byte, 65)
	full[0] = 0x04
	copy(full[1:], data)
	key, err := secp256k1.ParsePubKey(full)
	if err != nil {
		return nil, fmt.Errorf("walletkey: parse public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Address derives the public key's ledger address.
func (pub *PublicKey) Address() string {
	return hashutil.AddressFromPubkey(pub.Bytes())
}

// Verify checks sig (a DER-encoded ECDSA signature) against message
// using pub, hashing message with SHA-256 first.
func Verify(pub *PublicKey, message, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := sha256Sum(message)
	return parsed.Verify(digest[:], pub.key)
}

// VerifyBytes verifies a signature against a raw 64-byte pubkey,
// returning false (never an error) on any malformed input — the way
// OP_CHECKSIG treats a bad signature as a failed check, not a crash.
func VerifyBytes(pubkeyBytes, message, sig []byte) bool {
	pub, err := PublicKeyFromBytes(pubkeyBytes)
	if err != nil {
		return false
	}
	return Verify(pub, message, sig)
}
