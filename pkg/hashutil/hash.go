// Package hashutil provides the double-SHA256 digest and Base58Check
// address derivation used throughout the ledger.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for parity with the pack's only complete Base58Check stack
)

// Sha256d returns the hex-encoded double SHA-256 digest of s. Every hash
// in the ledger — transaction IDs, block hashes, signature messages —
// is built on this one primitive.
func Sha256d(s string) string {
	return Sha256dBytes([]byte(s))
}

// Sha256dBytes is Sha256d over a byte slice, for callers that already
// hold raw bytes instead of text.
func Sha256dBytes(b []byte) string {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return hex.EncodeToString(second[:])
}

// BuildMessage reproduces the distillation source's build_message: the
// ECDSA message bytes are the UTF-8 bytes of the hex digest STRING, not
// the raw 32-byte digest. Getting this wrong silently breaks every
// signature check without breaking compilation, so it is pinned here
// and nowhere else.
func BuildMessage(s string) []byte {
	return []byte(Sha256d(s))
}

const addressVersion byte = 0x00

// AddressFromPubkey derives a Base58Check address from a raw public key
// by SHA-256, then RIPEMD-160, then Base58Check-encoding with a single
// version byte.
func AddressFromPubkey(pubkey []byte) string {
	sha := sha256.Sum256(pubkey)
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	ripeDigest := ripe.Sum(nil)
	payload := make([]byte, 0, len(ripeDigest)+1)
	payload = append(payload, addressVersion)
	payload = append(payload, ripeDigest...)
	return Base58CheckEncode(payload)
}
