package models

import "time"

// ContextType identifies the clinical category of a cached context entry
type ContextType string

const (
	ContextMedicalHistory ContextType = "medical_history"
	ContextTestResults    ContextType = "test_results"
	ContextMedications    ContextType = "medications"
	ContextAllergies      ContextType = "allergies"
	ContextConditions     ContextType = "conditions"
	ContextProcedures     ContextType = "procedures"
	ContextVitalSigns     ContextType = "vital_signs"
	ContextImagingResults ContextType = "imaging_results"
	ContextClinicalNotes  ContextType = "clinical_notes"
	ContextTrends         ContextType = "trends"
	ContextCorrelations   ContextType = "correlations"
)

// AllContextTypes lists every supported context category
var AllContextTypes = []ContextType{
	ContextMedicalHistory,
	ContextTestResults,
	ContextMedications,
	ContextAllergies,
	ContextConditions,
	ContextProcedures,
	ContextVitalSigns,
	ContextImagingResults,
	ContextClinicalNotes,
	ContextTrends,
	ContextCorrelations,
}

// Valid reports whether t is one of the supported context categories
func (t ContextType) Valid() bool {
	for _, known := range AllContextTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SanitizationLevel describes how thoroughly a payload was scrubbed before caching
type SanitizationLevel string

const (
	SanitizationNone    SanitizationLevel = "none"
	SanitizationPartial SanitizationLevel = "partial"
	SanitizationFull    SanitizationLevel = "full"
)

// Payload is a free-form structured document (decoded JSON)
type Payload map[string]interface{}

// Clone returns a deep copy of the payload. Nested maps and slices are copied;
// scalar values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Payload:
		return val.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Payload(val).Clone())
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// SanitizationReport records what the sanitizer removed from a payload
type SanitizationReport struct {
	RemovedFields []string          `json:"removed_fields"`
	Level         SanitizationLevel `json:"level"`
	SanitizedAt   time.Time         `json:"sanitized_at"`
}

// EntryMetadata holds provenance and access statistics for a context entry
type EntryMetadata struct {
	Source       string    `json:"source,omitempty"`
	DocumentIDs  []string  `json:"document_ids,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Version      int       `json:"version"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int64     `json:"access_count"`
}

// ContextEntry is a single sanitized, scored piece of subject context.
// SubjectID is always the anonymized digest, never the raw identifier.
type ContextEntry struct {
	ID                 string              `json:"id"`
	SubjectID          string              `json:"subject_id"`
	Type               ContextType         `json:"type"`
	SanitizedPayload   Payload             `json:"sanitized_payload"`
	Importance         int                 `json:"importance"`      // 0-100
	RelevanceScore     float64             `json:"relevance_score"` // 0.0-1.0
	Timestamp          time.Time           `json:"timestamp"`
	ExpiresAt          *time.Time          `json:"expires_at,omitempty"`
	Metadata           EntryMetadata       `json:"metadata"`
	SanitizationReport *SanitizationReport `json:"sanitization_report,omitempty"`
}

// IsSanitized reports whether the entry already carries a sanitization report
func (e *ContextEntry) IsSanitized() bool {
	return e.SanitizationReport != nil
}

// IsExpired reports whether the entry's expiry lies at or before now
func (e *ContextEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// RemovedFieldCount returns how many fields sanitization stripped
func (e *ContextEntry) RemovedFieldCount() int {
	if e.SanitizationReport == nil {
		return 0
	}
	return len(e.SanitizationReport.RemovedFields)
}

// Clone returns a deep copy safe to hand to callers
func (e *ContextEntry) Clone() *ContextEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.SanitizedPayload = e.SanitizedPayload.Clone()
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	out.Metadata.DocumentIDs = append([]string(nil), e.Metadata.DocumentIDs...)
	out.Metadata.Tags = append([]string(nil), e.Metadata.Tags...)
	if e.SanitizationReport != nil {
		report := *e.SanitizationReport
		report.RemovedFields = append([]string(nil), e.SanitizationReport.RemovedFields...)
		out.SanitizationReport = &report
	}
	return &out
}

// EntryPatch carries the fields an update may change. Nil fields are left untouched.
type EntryPatch struct {
	Type           *ContextType
	Payload        Payload
	RelevanceScore *float64
	Timestamp      *time.Time
	ExpiresAt      *time.Time
	Source         *string
	DocumentIDs    []string
	Tags           []string
}

// ContextMetadataInput is the caller-supplied metadata for a new patient context entry
type ContextMetadataInput struct {
	Source      string
	DocumentIDs []string
	Tags        []string
	TTL         time.Duration // zero uses the cache default
}

// ContextQuery filters cached entries. SubjectID is the raw identifier; the cache
// anonymizes it before matching.
type ContextQuery struct {
	SubjectID      string
	Types          []ContextType
	MinImportance  int
	MaxAge         time.Duration
	IncludeExpired bool
	Limit          int
}

// CacheStatistics summarizes the cache contents
type CacheStatistics struct {
	TotalEntries      int                 `json:"total_entries"`
	Capacity          int                 `json:"capacity"`
	EntriesByType     map[ContextType]int `json:"entries_by_type"`
	AverageImportance float64             `json:"average_importance"`
	HitRate           float64             `json:"hit_rate"`
	Hits              int64               `json:"hits"`
	Misses            int64               `json:"misses"`
	ComplianceRatio   float64             `json:"compliance_ratio"`
	StorageBytes      int64               `json:"storage_bytes"`
	OldestEntry       *time.Time          `json:"oldest_entry,omitempty"`
	NewestEntry       *time.Time          `json:"newest_entry,omitempty"`
}

// CacheHealth is the derived health of the context cache
type CacheHealth struct {
	Status     string          `json:"status"` // "healthy", "degraded", "unhealthy"
	Issues     []string        `json:"issues"`
	Statistics CacheStatistics `json:"statistics"`
	CheckedAt  time.Time       `json:"checked_at"`
}
