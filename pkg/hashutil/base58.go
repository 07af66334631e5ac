package hashutil

import (
	"crypto/sha256"
	"errors"
	"math/big"
)

// base58Alphabet is Bitcoin's Base58 alphabet: no 0, O, I, l.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var (
	base58Base        = big.NewInt(58)
	bigZero           = big.NewInt(0)
	base58AlphabetMap [128]int8
)

func init() {
	for i := range base58AlphabetMap {
		base58AlphabetMap[i] = -1
	}
	for i, c := range base58Alphabet {
		base58AlphabetMap[c] = int8(i)
	}
}

// ErrInvalidBase58 is returned for strings containing characters outside
// the Base58 alphabet.
var ErrInvalidBase58 = errors.New("hashutil: invalid base58 string")

// Base58Encode encodes data to a Base58 string.
func Base58Encode(data []byte) string {
	x := new(big.Int).SetBytes(data)

	var result []byte
	for x.Cmp(bigZero) > 0 {
		mod := new(big.Int)
		x.DivMod(x, base58Base, mod)
		result = append(result, base58Alphabet[mod.Int64()])
	}

	for _, b := range data {
		if b != 0 {
			break
		}
		result = append(result, base58Alphabet[0])
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return string(result)
}

// Base58Decode decodes a Base58 string back to bytes.
func Base58Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}

	x := big.NewInt(0)
	for _, c := range input {
		if c > 127 || base58AlphabetMap[c] == -1 {
			return nil, ErrInvalidBase58
		}
		x.Mul(x, base58Base)
		x.Add(x, big.NewInt(int64(base58AlphabetMap[c])))
	}

	decoded := x.Bytes()

	for _, c := range input {
		if c != rune(base58Alphabet[0]) {
			break
		}
		decoded = append([]byte{0}, decoded...)
	}

	return decoded, nil
}

// Base58CheckEncode encodes payload (already including its version
// byte) with a trailing 4-byte double-SHA256 checksum.
func Base58CheckEncode(payload []byte) string {
	checksum := sha256dBytesRaw(payload)[:4]
	full := append(append([]byte{}, payload...), checksum...)
	return Base58Encode(full)
}

// Base58CheckDecode decodes and verifies a Base58Check string, returning
// the version byte and the data that followed it.
func Base58CheckDecode(input string) (version byte, data []byte, err error) {
	decoded, err := Base58Decode(input)
	if err != nil {
		return 0, nil, err
	}
	if len(decoded) < 5 {
		return 0, nil, errors.New("hashutil: decoded base58check payload too short")
	}

	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	expected := sha256dBytesRaw(payload)[:4]
	for i := 0; i < 4; i++ {
		if checksum[i] != expected[i] {
			return 0, nil, errors.New("hashutil: base58check checksum mismatch")
		}
	}
	return payload[0], payload[1:], nil
}

func sha256dBytesRaw(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}
