package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const recordKeyInfo = "phicontext-snapshot-record"

// RecordCipher encrypts snapshot records at rest with AES-256-GCM.
// Every record gets its own key derived from the master key and the record ID,
// and the ID is bound as additional data so a record cannot be moved to another ID.
type RecordCipher struct {
	masterKey []byte
}

// NewRecordCipher creates a cipher from a 32-byte hex-encoded master key (64 characters)
func NewRecordCipher(masterKeyHex string) (*RecordCipher, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}

	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}

	return &RecordCipher{masterKey: masterKey}, nil
}

// deriveRecordKey derives the AES key for one record using HKDF
func (c *RecordCipher) deriveRecordKey(recordID string) ([]byte, error) {
	if recordID == "" {
		return nil, errors.New("record ID is required for key derivation")
	}

	reader := hkdf.New(sha256.New, c.masterKey, []byte(recordID), []byte(recordKeyInfo))

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive record key: %w", err)
	}
	return key, nil
}

func (c *RecordCipher) aead(recordID string) (cipher.AEAD, error) {
	key, err := c.deriveRecordKey(recordID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext for recordID.
// Returns base64-encoded ciphertext with the nonce prepended.
func (c *RecordCipher) Seal(recordID string, plaintext []byte) (string, error) {
	gcm, err := c.aead(recordID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(recordID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same recordID
func (c *RecordCipher) Open(recordID string, sealedB64 string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := c.aead(recordID)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(recordID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record %s: %w", recordID, err)
	}
	return plaintext, nil
}

// GenerateMasterKey generates a new random 32-byte master key (for setup)
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
