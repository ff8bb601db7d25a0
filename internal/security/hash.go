package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Hash represents a SHA-256 digest (32 bytes)
type Hash [32]byte

// CalculateDataHash computes the SHA-256 hash of byte data
func CalculateDataHash(data []byte) *Hash {
	hashArray := sha256.Sum256(data)
	hash := Hash(hashArray)
	return &hash
}

// CalculateKeyedHash computes HMAC-SHA256 of data under key
func CalculateKeyedHash(key, data []byte) *Hash {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)

	var result Hash
	copy(result[:], mac.Sum(nil))
	return &result
}

// String returns the hash as a hex string
func (h *Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal compares two hashes using constant-time comparison
func (h *Hash) Equal(other *Hash) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// FromHexString creates a Hash from a hex string
func FromHexString(s string) (*Hash, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}

	if len(bytes) != 32 {
		return nil, fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(bytes))
	}

	var hash Hash
	copy(hash[:], bytes)
	return &hash, nil
}
