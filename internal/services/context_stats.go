package services

import (
	"phicontext/internal/health"
	"phicontext/internal/models"
	"time"
)

// GetStatistics summarizes the current cache contents. Expired entries that have
// not been observed yet are still counted.
func (s *ContextCacheService) GetStatistics() models.CacheStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.CacheStatistics{
		TotalEntries:    len(s.records),
		Capacity:        s.cfg.MaxEntries,
		EntriesByType:   make(map[models.ContextType]int),
		ComplianceRatio: 1.0,
	}

	hits, misses := s.hits.Load(), s.misses.Load()
	stats.Hits, stats.Misses = hits, misses
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}

	if len(s.records) == 0 {
		return stats
	}

	var importanceSum, compliant int
	var oldest, newest time.Time
	for _, rec := range s.records {
		e := rec.entry
		stats.EntriesByType[e.Type]++
		importanceSum += e.Importance
		stats.StorageBytes += rec.sizeBytes
		if e.IsSanitized() && e.SanitizationReport.Level != models.SanitizationNone {
			compliant++
		}
		if oldest.IsZero() || e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
		if newest.IsZero() || e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}

	n := float64(len(s.records))
	stats.AverageImportance = float64(importanceSum) / n
	stats.ComplianceRatio = float64(compliant) / n
	stats.OldestEntry = &oldest
	stats.NewestEntry = &newest
	return stats
}

// GetHealth derives the cache health from its statistics
func (s *ContextCacheService) GetHealth() models.CacheHealth {
	stats := s.GetStatistics()

	report := s.health.Evaluate(health.Signals{
		ComplianceRatio: stats.ComplianceRatio,
		Entries:         stats.TotalEntries,
		Capacity:        stats.Capacity,
		HitRate:         stats.HitRate,
		Lookups:         stats.Hits + stats.Misses,
	})

	if report.Status != health.StatusHealthy {
		s.logger.Warn("context cache health check reported issues",
			"status", report.Status,
			"issues", len(report.Issues))
	}

	return models.CacheHealth{
		Status:     string(report.Status),
		Issues:     report.Issues,
		Statistics: stats,
		CheckedAt:  s.now(),
	}
}
