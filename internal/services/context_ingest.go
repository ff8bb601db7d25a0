package services

import (
	"context"
	"encoding/json"
	"fmt"
	"phicontext/internal/logging"
	"phicontext/internal/models"
	"phicontext/internal/security"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// AddPatientContext sanitizes rawPayload and stores it as a new entry for the
// subject. The raw subject identifier is replaced by its anonymized digest before
// anything is stored. Returns the new entry id. When a dedup window is configured,
// a resubmission of the same content and metadata returns the id of the entry it
// created, as long as that entry is still cached and unchanged.
func (s *ContextCacheService) AddPatientContext(
	ctx context.Context,
	subjectID string,
	contextType models.ContextType,
	rawPayload models.Payload,
	meta models.ContextMetadataInput,
) (string, error) {
	if subjectID == "" {
		return "", ErrEmptySubject
	}
	if !contextType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContextType, contextType)
	}

	now := s.now()
	subject := s.anonymizer.Anonymize(subjectID)
	result := s.sanitizer.Sanitize(rawPayload)

	fingerprint := ""
	if s.recent != nil {
		fingerprint = submissionFingerprint(subject, contextType, result.Payload, meta)
	}
	if fingerprint != "" {
		if cached, found := s.recent.Get(fingerprint); found {
			if id, ok := cached.(string); ok && s.holdsSubmission(id, fingerprint, meta.TTL) {
				logging.WithEntry(s.logger, id, string(contextType)).Debug("duplicate context submission, reusing entry")
				return id, nil
			}
			s.recent.Delete(fingerprint)
		}
	}

	entry := &models.ContextEntry{
		ID:               uuid.New().String(),
		SubjectID:        subject,
		Type:             contextType,
		SanitizedPayload: result.Payload,
		RelevanceScore:   matchedRelevance,
		Timestamp:        now,
		Metadata: models.EntryMetadata{
			Source:      meta.Source,
			DocumentIDs: append([]string(nil), meta.DocumentIDs...),
			Tags:        append([]string(nil), meta.Tags...),
			Version:     1,
		},
		SanitizationReport: &models.SanitizationReport{
			RemovedFields: result.RemovedFields,
			Level:         result.Level,
			SanitizedAt:   now,
		},
	}

	ttl := meta.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	if err := s.Store(entry.ID, entry); err != nil {
		return "", fmt.Errorf("add patient context: %w", err)
	}

	if fingerprint != "" {
		s.recent.Set(fingerprint, entry.ID, cache.DefaultExpiration)
	}

	if s.cfg.RescoreAllOnInsert {
		if _, err := s.ReanalyzeImportance(ctx); err != nil {
			s.logger.Warn("insert-triggered reanalysis failed", "error", err)
		}
	}

	return entry.ID, nil
}

// holdsSubmission reports whether entry id is still cached, unexpired and unchanged
// since it was created from the submission behind fingerprint
func (s *ContextCacheService) holdsSubmission(id, fingerprint string, ttl time.Duration) bool {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.entry.IsExpired(now) {
		return false
	}
	e := rec.entry
	current := submissionFingerprint(e.SubjectID, e.Type, e.SanitizedPayload, models.ContextMetadataInput{
		Source:      e.Metadata.Source,
		DocumentIDs: e.Metadata.DocumentIDs,
		Tags:        e.Metadata.Tags,
		TTL:         ttl,
	})
	return current == fingerprint
}

type submission struct {
	Subject     string             `json:"subject"`
	Type        models.ContextType `json:"type"`
	Payload     models.Payload     `json:"payload"`
	Source      string             `json:"source"`
	DocumentIDs []string           `json:"document_ids"`
	Tags        []string           `json:"tags"`
	TTL         time.Duration      `json:"ttl"`
}

// submissionFingerprint identifies identical sanitized submissions for one subject.
// encoding/json sorts map keys, so equal payloads hash equally.
func submissionFingerprint(subject string, contextType models.ContextType, payload models.Payload, meta models.ContextMetadataInput) string {
	data, err := json.Marshal(submission{
		Subject:     subject,
		Type:        contextType,
		Payload:     payload,
		Source:      meta.Source,
		DocumentIDs: nonEmpty(meta.DocumentIDs),
		Tags:        nonEmpty(meta.Tags),
		TTL:         meta.TTL,
	})
	if err != nil {
		return ""
	}
	return security.CalculateDataHash(data).String()
}

func nonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
