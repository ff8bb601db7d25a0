package security

import (
	"strings"
	"testing"
)

func TestAnonymizeDeterministic(t *testing.T) {
	a, err := NewAnonymizer("test-secret")
	if err != nil {
		t.Fatalf("NewAnonymizer failed: %v", err)
	}

	first := a.Anonymize("patient-123")
	second := a.Anonymize("patient-123")

	if first != second {
		t.Errorf("Expected stable digest, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(first))
	}
	if strings.Contains(first, "patient-123") {
		t.Error("Digest must not contain the raw identifier")
	}
}

func TestAnonymizeDependsOnSecret(t *testing.T) {
	a, _ := NewAnonymizer("secret-a")
	b, _ := NewAnonymizer("secret-b")

	if a.Anonymize("patient-123") == b.Anonymize("patient-123") {
		t.Error("Different secrets should produce different digests")
	}
}

func TestAnonymizeDistinctSubjects(t *testing.T) {
	a, _ := NewAnonymizer("test-secret")

	if a.Anonymize("patient-1") == a.Anonymize("patient-2") {
		t.Error("Different subjects should produce different digests")
	}
	if a.Anonymize("") != "" {
		t.Error("Empty subject should produce an empty digest")
	}
}

func TestMatchesDigest(t *testing.T) {
	a, _ := NewAnonymizer("test-secret")
	digest := a.Anonymize("patient-123")

	if !MatchesDigest(a.Digest("patient-123"), digest) {
		t.Error("MatchesDigest should accept the subject's own digest")
	}
	if MatchesDigest(a.Digest("patient-456"), digest) {
		t.Error("MatchesDigest should reject another subject")
	}
	if MatchesDigest(a.Digest("patient-123"), "not-hex") {
		t.Error("MatchesDigest should reject malformed digests")
	}
	if MatchesDigest(a.Digest(""), digest) {
		t.Error("MatchesDigest should reject an empty subject")
	}
}

func TestNewAnonymizerRequiresSecret(t *testing.T) {
	if _, err := NewAnonymizer(""); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestEphemeralAnonymizer(t *testing.T) {
	a, err := NewEphemeralAnonymizer()
	if err != nil {
		t.Fatalf("NewEphemeralAnonymizer failed: %v", err)
	}
	b, _ := NewEphemeralAnonymizer()

	if a.Anonymize("patient-123") == b.Anonymize("patient-123") {
		t.Error("Ephemeral anonymizers should not share keys")
	}
}

func TestHashFromHexRoundTrip(t *testing.T) {
	h := CalculateDataHash([]byte("payload"))

	parsed, err := FromHexString(h.String())
	if err != nil {
		t.Fatalf("FromHexString failed: %v", err)
	}
	if !h.Equal(parsed) {
		t.Error("Parsed hash should equal original")
	}
	if _, err := FromHexString("abcd"); err == nil {
		t.Error("Expected error for short hash")
	}
}
