package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const anonymizationInfo = "phicontext-subject-anonymization"

// Anonymizer derives irreversible subject identifiers with HMAC-SHA256.
// The HMAC key is derived from a server-held secret, so the same subject maps to
// the same digest within a deployment but cannot be recovered or recomputed
// without the secret.
type Anonymizer struct {
	key []byte
}

// NewAnonymizer creates an anonymizer keyed from secret
func NewAnonymizer(secret string) (*Anonymizer, error) {
	if secret == "" {
		return nil, errors.New("anonymization secret is required")
	}

	hkdfReader := hkdf.New(sha256.New, []byte(secret), nil, []byte(anonymizationInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to derive anonymization key: %w", err)
	}

	return &Anonymizer{key: key}, nil
}

// NewEphemeralAnonymizer creates an anonymizer with a random per-process secret.
// Digests do not survive a restart; use only outside production.
func NewEphemeralAnonymizer() (*Anonymizer, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate anonymization secret: %w", err)
	}
	return NewAnonymizer(hex.EncodeToString(secret))
}

// Digest returns the keyed digest for subjectID. Empty input yields nil.
func (a *Anonymizer) Digest(subjectID string) *Hash {
	if subjectID == "" {
		return nil
	}
	return CalculateKeyedHash(a.key, []byte(subjectID))
}

// Anonymize returns the hex digest for subjectID. Empty input yields "".
func (a *Anonymizer) Anonymize(subjectID string) string {
	digest := a.Digest(subjectID)
	if digest == nil {
		return ""
	}
	return digest.String()
}

// MatchesDigest reports whether the hex digest equals want, in constant time
func MatchesDigest(want *Hash, digest string) bool {
	if want == nil || digest == "" {
		return false
	}
	got, err := FromHexString(digest)
	if err != nil {
		return false
	}
	return want.Equal(got)
}
