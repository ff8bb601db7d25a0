package services

import (
	"phicontext/internal/models"
	"phicontext/internal/security"
	"sort"
	"time"
)

// queryHit pairs a matched record with the copy handed to the caller
type queryHit struct {
	rec   *contextRecord
	entry *models.ContextEntry
}

// Query returns copies of the entries matching filter, most important first.
// Returned entries have their access statistics updated; expired entries are
// deleted unless filter.IncludeExpired is set.
func (s *ContextCacheService) Query(filter models.ContextQuery) []models.ContextEntry {
	hits := s.query(filter)
	out := make([]models.ContextEntry, len(hits))
	for i, h := range hits {
		out[i] = *h.entry
	}
	return out
}

func (s *ContextCacheService) query(filter models.ContextQuery) []queryHit {
	var subject *security.Hash
	if filter.SubjectID != "" {
		subject = s.anonymizer.Digest(filter.SubjectID)
	}

	var types map[models.ContextType]struct{}
	if len(filter.Types) > 0 {
		types = make(map[models.ContextType]struct{}, len(filter.Types))
		for _, t := range filter.Types {
			types[t] = struct{}{}
		}
	}

	now := s.now()

	s.mu.RLock()
	var matched, expired []*contextRecord
	for _, rec := range s.records {
		e := rec.entry
		if subject != nil && !security.MatchesDigest(subject, e.SubjectID) {
			continue
		}
		if types != nil {
			if _, ok := types[e.Type]; !ok {
				continue
			}
		}
		if e.IsExpired(now) && !filter.IncludeExpired {
			expired = append(expired, rec)
			continue
		}
		if e.Importance < filter.MinImportance {
			continue
		}
		if filter.MaxAge > 0 && ageOf(e, now) > filter.MaxAge {
			continue
		}
		matched = append(matched, rec)
	}

	sortByImportance(matched)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	hits := make([]queryHit, len(matched))
	for i, rec := range matched {
		rec.touch(now)
		hits[i] = queryHit{rec: rec, entry: rec.snapshot()}
	}
	s.mu.RUnlock()

	s.deleteExpired(expired, now)
	return hits
}

// sortByImportance orders records by importance descending, then newest
// timestamp, then insertion order
func sortByImportance(recs []*contextRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].entry, recs[j].entry
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return recs[i].seq < recs[j].seq
	})
}

// GetContextForAnalysis returns the subject's entries best suited to analysisType.
// Entries below the importance floor are skipped; each result's relevance is
// recomputed for analysisType and written back, and the results are ranked by
// importance*0.5 + relevance*50. maxEntries <= 0 uses a default of 20.
func (s *ContextCacheService) GetContextForAnalysis(subjectID, analysisType string, maxEntries int) ([]models.ContextEntry, error) {
	if subjectID == "" {
		return nil, ErrEmptySubject
	}
	if maxEntries <= 0 {
		maxEntries = defaultAnalysisEntries
	}

	hits := s.query(models.ContextQuery{
		SubjectID:      subjectID,
		MinImportance:  s.cfg.ImportanceFloor,
		IncludeExpired: false,
	})
	if len(hits) == 0 {
		return []models.ContextEntry{}, nil
	}

	type ranked struct {
		entry    *models.ContextEntry
		seq      uint64
		combined float64
	}

	s.mu.Lock()
	now := s.clock.Now()
	results := make([]ranked, 0, len(hits))
	for _, h := range hits {
		rec := h.rec
		entry := h.entry
		relevance := s.relevance.Relevance(analysisType, entry.Type)

		// write back only if the record was not replaced or removed meanwhile
		if current, ok := s.records[rec.key]; ok && current == rec {
			rec.entry.RelevanceScore = relevance
			rec.entry.Importance = s.scoreRecord(rec, now)
			entry = rec.snapshot()
		} else {
			entry.RelevanceScore = relevance
		}

		results = append(results, ranked{
			entry:    entry,
			seq:      rec.seq,
			combined: analysisRank(entry),
		})
	}
	s.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].combined != results[j].combined {
			return results[i].combined > results[j].combined
		}
		return results[i].seq < results[j].seq
	})
	if len(results) > maxEntries {
		results = results[:maxEntries]
	}

	out := make([]models.ContextEntry, len(results))
	for i, r := range results {
		out[i] = *r.entry
	}
	return out, nil
}

// analysisRank is the ordering key for analysis context
func analysisRank(e *models.ContextEntry) float64 {
	return float64(e.Importance)*0.5 + e.RelevanceScore*50
}

// ageOf returns how long ago the entry's content was recorded
func ageOf(e *models.ContextEntry, now time.Time) time.Duration {
	if e.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(e.Timestamp)
}
