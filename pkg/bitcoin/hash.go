// Package bitcoin provides the domain-separated hashing, varint encoding,
// and canonical transaction serialization shared by the transaction index
// and the Stratum V2 pool core.
package bitcoin

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a 32-byte content digest. Equality is byte equality; it is
// displayed big-endian (reversed) for humans and stored little-endian
// on the wire, per Bitcoin convention.
type Hash [32]byte

// SHA256 computes a single SHA-256 digest.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DoubleSHA256 computes SHA256(SHA256(data)), used throughout Bitcoin
// for txids and block hashes.
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// ReverseBytes returns a new slice with bytes in reverse order.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// HashToHex returns the reversed (display-order) hex encoding of a hash.
func HashToHex(hash [32]byte) string {
	return hex.EncodeToString(ReverseBytes(hash[:]))
}

// HexToHash parses a display-order hex string back into a [32]byte hash.
func HexToHash(s string) ([32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) != 32 {
		return [32]byte{}, hex.ErrLength
	}
	var h [32]byte
	copy(h[:], ReverseBytes(b))
	return h, nil
}
