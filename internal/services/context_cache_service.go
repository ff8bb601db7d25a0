package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"phicontext/internal/health"
	"phicontext/internal/logging"
	"phicontext/internal/models"
	"phicontext/internal/sanitizer"
	"phicontext/internal/security"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	evictionFraction       = 0.1
	entryOverheadBytes     = 256
	defaultAnalysisEntries = 20
)

// ContextCacheConfig holds the tunables of the context cache
type ContextCacheConfig struct {
	MaxEntries          int           // Default: 1000
	ImportanceFloor     int           // Default: 30, used by GetContextForAnalysis
	DefaultTTL          time.Duration // Default: 0 (entries never expire)
	RescoreAllOnInsert  bool          // Default: false, score only the new entry
	ReanalysisChunkSize int           // Default: 100 entries per write lock
	ReanalysisChunkRate float64       // Default: 0 (no pacing between chunks)
	DedupWindow         time.Duration // Default: 0 (duplicate detection off)
	Weights             ScoringWeights
}

// DefaultContextCacheConfig returns the default cache configuration
func DefaultContextCacheConfig() ContextCacheConfig {
	return ContextCacheConfig{
		MaxEntries:          1000,
		ImportanceFloor:     30,
		ReanalysisChunkSize: 100,
		Weights:             DefaultScoringWeights(),
	}
}

// contextRecord is the single per-key record: the entry, its insertion order,
// its size estimate and its access statistics. The access statistics are atomics
// so concurrent readers can update them under the read lock.
type contextRecord struct {
	key          string
	entry        *models.ContextEntry
	seq          uint64
	sizeBytes    int64
	accessCount  atomic.Int64
	lastAccessed atomic.Int64 // unix nanos, 0 = never
}

func (r *contextRecord) touch(now time.Time) {
	r.accessCount.Add(1)
	r.lastAccessed.Store(now.UnixNano())
}

// snapshot returns a deep copy with live access statistics.
// Callers must hold at least the read lock.
func (r *contextRecord) snapshot() *models.ContextEntry {
	out := r.entry.Clone()
	out.Metadata.AccessCount = r.accessCount.Load()
	if la := r.lastAccessed.Load(); la != 0 {
		out.Metadata.LastAccessed = time.Unix(0, la).UTC()
	}
	return out
}

// ContextCacheService is the sanitizing, importance-scored context cache.
// All entries pass through the sanitizer before they are stored.
type ContextCacheService struct {
	mu      sync.RWMutex
	records map[string]*contextRecord
	nextSeq uint64

	cfg        ContextCacheConfig
	sanitizer  sanitizer.Sanitizer
	anonymizer *security.Anonymizer
	relevance  AnalysisRelevance
	health     *health.Service
	clock      clockwork.Clock
	limiter    *rate.Limiter
	recent     *cache.Cache // content fingerprint -> entry id
	metrics    *ContextCacheMetrics
	logger     *slog.Logger

	// scoreFn computes importance; replaced in tests
	scoreFn func(entry *models.ContextEntry, now time.Time) int

	hits   atomic.Int64
	misses atomic.Int64
}

// NewContextCacheService creates a context cache
func NewContextCacheService(cfg ContextCacheConfig, s sanitizer.Sanitizer, anonymizer *security.Anonymizer) (*ContextCacheService, error) {
	if s == nil {
		return nil, errors.New("sanitizer is required")
	}
	if anonymizer == nil {
		return nil, errors.New("anonymizer is required")
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", cfg.MaxEntries)
	}
	if cfg.ImportanceFloor < 0 || cfg.ImportanceFloor > 100 {
		return nil, fmt.Errorf("importance floor must be within 0-100, got %d", cfg.ImportanceFloor)
	}
	if cfg.ReanalysisChunkSize <= 0 {
		cfg.ReanalysisChunkSize = DefaultContextCacheConfig().ReanalysisChunkSize
	}
	if cfg.Weights == (ScoringWeights{}) {
		cfg.Weights = DefaultScoringWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}

	svc := &ContextCacheService{
		records:    make(map[string]*contextRecord),
		cfg:        cfg,
		sanitizer:  s,
		anonymizer: anonymizer,
		relevance:  DefaultAnalysisRelevance(),
		health:     health.NewService(health.DefaultThresholds()),
		clock:      clockwork.NewRealClock(),
		logger:     logging.WithComponent("context-cache"),
	}
	weights := cfg.Weights
	svc.scoreFn = func(entry *models.ContextEntry, now time.Time) int {
		return CalculateImportance(entry, now, weights)
	}
	if cfg.ReanalysisChunkRate > 0 {
		svc.limiter = rate.NewLimiter(rate.Limit(cfg.ReanalysisChunkRate), 1)
	}
	if cfg.DedupWindow > 0 {
		svc.recent = cache.New(cfg.DedupWindow, 2*cfg.DedupWindow)
	}

	return svc, nil
}

// SetClock replaces the time source (tests use a fake clock)
func (s *ContextCacheService) SetClock(clock clockwork.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetMetrics attaches Prometheus collectors
func (s *ContextCacheService) SetMetrics(metrics *ContextCacheMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
	s.metrics.SetEntries(len(s.records))
}

// SetLogger replaces the logger
func (s *ContextCacheService) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetAnalysisRelevance replaces the analysis type map
func (s *ContextCacheService) SetAnalysisRelevance(relevance AnalysisRelevance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if relevance != nil {
		s.relevance = relevance
	}
}

// Anonymize derives the one-way subject digest used as ContextEntry.SubjectID.
// Collaborators calling Store directly must use it.
func (s *ContextCacheService) Anonymize(subjectID string) string {
	return s.anonymizer.Anonymize(subjectID)
}

// Capacity returns the configured maximum entry count
func (s *ContextCacheService) Capacity() int {
	return s.cfg.MaxEntries
}

// Len returns the number of stored entries, including expired ones not yet observed
func (s *ContextCacheService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Store sanitizes, validates, scores and inserts entry under key.
// When the cache is full and key is new, the least important entries are evicted first.
func (s *ContextCacheService) Store(key string, entry *models.ContextEntry) error {
	if key == "" {
		return ErrEmptyKey
	}
	if entry == nil {
		return fmt.Errorf("store %q: entry is nil", key)
	}

	now := s.now()
	prepared, err := s.prepareEntry(key, entry.Clone(), now)
	if err != nil {
		return err
	}
	if prepared.Timestamp.IsZero() {
		prepared.Timestamp = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a new key without a relevance score starts fully relevant
	if _, exists := s.records[key]; !exists && prepared.RelevanceScore == 0 {
		prepared.RelevanceScore = matchedRelevance
	}
	prepared.RelevanceScore = clamp01(prepared.RelevanceScore)

	s.storeLocked(key, prepared, now, false)
	s.metrics.RecordOperation("store")
	logging.WithEntry(s.logger, key, string(prepared.Type)).Debug("stored context entry",
		"importance", prepared.Importance,
		"removed_fields", prepared.RemovedFieldCount())
	return nil
}

// prepareEntry runs the sanitization gate on e (already a private copy)
func (s *ContextCacheService) prepareEntry(key string, e *models.ContextEntry, now time.Time) (*models.ContextEntry, error) {
	if e.ID == "" {
		e.ID = key
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContextType, e.Type)
	}

	if !e.IsSanitized() {
		result := s.sanitizer.Sanitize(e.SanitizedPayload)
		e.SanitizedPayload = result.Payload
		e.SanitizationReport = &models.SanitizationReport{
			RemovedFields: result.RemovedFields,
			Level:         result.Level,
			SanitizedAt:   now,
		}
	}

	validation := s.sanitizer.Validate(e.SanitizedPayload)
	if !validation.Valid {
		s.metrics.RecordValidationFailure()
		logging.WithEntry(s.logger, key, string(e.Type)).Warn("context entry rejected by validation",
			"issues", len(validation.Issues))
		return nil, &ValidationError{Key: key, Issues: validation.Issues}
	}

	return e, nil
}

// storeLocked inserts a prepared entry. Callers must hold the write lock.
// preserveAccess keeps the entry's access statistics (used by Restore);
// otherwise the access counter starts at zero.
func (s *ContextCacheService) storeLocked(key string, e *models.ContextEntry, now time.Time, preserveAccess bool) {
	existing := s.records[key]

	if existing == nil && len(s.records) >= s.cfg.MaxEntries {
		s.evictLocked()
		if len(s.records) >= s.cfg.MaxEntries {
			panic(fmt.Sprintf("context cache over capacity after eviction: %d entries, max %d",
				len(s.records), s.cfg.MaxEntries))
		}
	}

	rec := &contextRecord{key: key, entry: e}
	if existing != nil {
		rec.seq = existing.seq
		e.Metadata.Version = existing.entry.Metadata.Version + 1
	} else {
		rec.seq = s.nextSeq
		s.nextSeq++
		if e.Metadata.Version < 1 {
			e.Metadata.Version = 1
		}
	}

	if preserveAccess {
		rec.accessCount.Store(e.Metadata.AccessCount)
	} else {
		e.Metadata.AccessCount = 0
	}
	if !e.Metadata.LastAccessed.IsZero() {
		rec.lastAccessed.Store(e.Metadata.LastAccessed.UnixNano())
	}

	rec.sizeBytes = estimateEntrySize(e)
	e.Importance = s.scoreRecord(rec, now)
	s.records[key] = rec
	s.metrics.SetEntries(len(s.records))
}

// scoreRecord computes importance with live access statistics
func (s *ContextCacheService) scoreRecord(rec *contextRecord, now time.Time) int {
	scored := *rec.entry
	scored.Metadata.AccessCount = rec.accessCount.Load()
	return s.scoreFn(&scored, now)
}

// Retrieve returns a copy of the entry under key and records the access.
// Expired entries are deleted and reported as absent.
func (s *ContextCacheService) Retrieve(key string) (*models.ContextEntry, bool) {
	now := s.now()

	s.mu.RLock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.RUnlock()
		s.recordLookup(false)
		return nil, false
	}
	if rec.entry.IsExpired(now) {
		s.mu.RUnlock()
		s.deleteExpired([]*contextRecord{rec}, now)
		s.recordLookup(false)
		return nil, false
	}
	rec.touch(now)
	out := rec.snapshot()
	s.mu.RUnlock()

	s.recordLookup(true)
	return out, true
}

// Exists reports whether key holds an unexpired entry. Access statistics are not touched.
func (s *ContextCacheService) Exists(key string) bool {
	now := s.now()

	s.mu.RLock()
	rec, ok := s.records[key]
	expired := ok && rec.entry.IsExpired(now)
	s.mu.RUnlock()

	if expired {
		s.deleteExpired([]*contextRecord{rec}, now)
		return false
	}
	return ok
}

// Update merges patch into the entry under key and stores it again.
// A changed payload is re-sanitized; the entry is always re-scored.
func (s *ContextCacheService) Update(key string, patch models.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[key]
	if !ok {
		return &NotFoundError{Key: key}
	}

	now := s.clock.Now()
	merged := existing.snapshot()

	if patch.Type != nil {
		merged.Type = *patch.Type
	}
	if patch.Payload != nil {
		merged.SanitizedPayload = patch.Payload.Clone()
		merged.SanitizationReport = nil
		merged.Timestamp = now
	}
	if patch.RelevanceScore != nil {
		merged.RelevanceScore = clamp01(*patch.RelevanceScore)
	}
	if patch.Timestamp != nil {
		merged.Timestamp = *patch.Timestamp
	}
	if patch.ExpiresAt != nil {
		t := *patch.ExpiresAt
		merged.ExpiresAt = &t
	}
	if patch.Source != nil {
		merged.Metadata.Source = *patch.Source
	}
	if patch.DocumentIDs != nil {
		merged.Metadata.DocumentIDs = append([]string(nil), patch.DocumentIDs...)
	}
	if patch.Tags != nil {
		merged.Metadata.Tags = append([]string(nil), patch.Tags...)
	}

	prepared, err := s.prepareEntry(key, merged, now)
	if err != nil {
		return err
	}

	s.storeLocked(key, prepared, now, false)
	s.metrics.RecordOperation("update")
	logging.WithEntry(s.logger, key, string(prepared.Type)).Debug("updated context entry",
		"version", prepared.Metadata.Version,
		"importance", prepared.Importance)
	return nil
}

// Delete removes the entry under key. Deleting an absent key is a no-op.
func (s *ContextCacheService) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return
	}
	delete(s.records, key)
	s.metrics.RecordOperation("delete")
	s.metrics.SetEntries(len(s.records))
}

// Clear removes every entry and resets lookup statistics
func (s *ContextCacheService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*contextRecord)
	s.hits.Store(0)
	s.misses.Store(0)
	if s.recent != nil {
		s.recent.Flush()
	}
	s.metrics.RecordOperation("clear")
	s.metrics.SetEntries(0)
	s.logger.Info("context cache cleared")
}

// Shutdown drops all cached context so no PHI-derived data outlives the owner
func (s *ContextCacheService) Shutdown() {
	s.Clear()
	s.logger.Info("context cache shut down")
}

// EvictLeastImportant removes the lowest-importance 10% of entries (at least one
// when the cache is not empty) and returns how many were removed.
func (s *ContextCacheService) EvictLeastImportant() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked()
}

// evictLocked sorts ascending by importance, ties broken by insertion order.
// Callers must hold the write lock.
func (s *ContextCacheService) evictLocked() int {
	count := len(s.records)
	if count == 0 {
		return 0
	}

	candidates := make([]*contextRecord, 0, count)
	for _, rec := range s.records {
		candidates = append(candidates, rec)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].entry.Importance != candidates[j].entry.Importance {
			return candidates[i].entry.Importance < candidates[j].entry.Importance
		}
		return candidates[i].seq < candidates[j].seq
	})

	toRemove := int(math.Ceil(float64(count) * evictionFraction))
	for _, rec := range candidates[:toRemove] {
		delete(s.records, rec.key)
	}

	s.metrics.RecordEvictions(toRemove)
	s.metrics.SetEntries(len(s.records))
	s.logger.Info("evicted least important context entries",
		"evicted", toRemove,
		"remaining", len(s.records),
		"max_importance_evicted", candidates[toRemove-1].entry.Importance)
	return toRemove
}

// deleteExpired removes records that are still current and still expired
func (s *ContextCacheService) deleteExpired(recs []*contextRecord, now time.Time) {
	if len(recs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, rec := range recs {
		if current, ok := s.records[rec.key]; ok && current == rec && rec.entry.IsExpired(now) {
			delete(s.records, rec.key)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.RecordExpirations(removed)
		s.metrics.SetEntries(len(s.records))
	}
}

func (s *ContextCacheService) recordLookup(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	s.metrics.RecordLookup(hit)
}

func (s *ContextCacheService) now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Now()
}

// estimateEntrySize approximates memory use as the JSON size of the payload
// plus a fixed per-entry overhead
func estimateEntrySize(e *models.ContextEntry) int64 {
	data, err := json.Marshal(e.SanitizedPayload)
	if err != nil {
		return entryOverheadBytes
	}
	return int64(len(data)) + entryOverheadBytes
}
