package services

import (
	"context"
	"fmt"
	"time"
)

// ReanalysisResult summarizes one importance sweep
type ReanalysisResult struct {
	Total    int           `json:"total"`
	Rescored int           `json:"rescored"`
	Expired  int           `json:"expired"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ReanalyzeImportance recomputes the importance of every entry.
// Keys are processed in chunks, each under its own short write lock, so foreground
// calls interleave with a long sweep. Expired entries found by the sweep are deleted.
// A failure scoring one entry is logged and the sweep continues.
func (s *ContextCacheService) ReanalyzeImportance(ctx context.Context) (ReanalysisResult, error) {
	started := time.Now()

	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	result := ReanalysisResult{Total: len(keys)}
	chunk := s.cfg.ReanalysisChunkSize

	for start := 0; start < len(keys); start += chunk {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			return result, fmt.Errorf("reanalysis interrupted after %d entries: %w", start, err)
		}
		if start > 0 && s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				result.Duration = time.Since(started)
				return result, fmt.Errorf("reanalysis interrupted after %d entries: %w", start, err)
			}
		}

		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		s.rescoreChunk(keys[start:end], &result)
	}

	result.Duration = time.Since(started)
	s.metrics.RecordReanalysis(result.Duration.Seconds(), result.Failed)
	s.logger.Info("importance reanalysis completed",
		"total", result.Total,
		"rescored", result.Rescored,
		"expired", result.Expired,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}

func (s *ContextCacheService) rescoreChunk(keys []string, result *ReanalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	expired := 0
	for _, key := range keys {
		rec, ok := s.records[key]
		if !ok {
			continue // removed since the sweep started
		}
		if rec.entry.IsExpired(now) {
			delete(s.records, key)
			expired++
			continue
		}
		if err := s.rescoreRecord(rec, now); err != nil {
			result.Failed++
			s.logger.Warn("failed to rescore context entry", "entry_key", key, "error", err)
			continue
		}
		result.Rescored++
	}

	if expired > 0 {
		result.Expired += expired
		s.metrics.RecordExpirations(expired)
		s.metrics.SetEntries(len(s.records))
	}
}

// rescoreRecord updates one record's importance, keeping the previous score on failure
func (s *ContextCacheService) rescoreRecord(rec *contextRecord, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scoring: %v", r)
		}
	}()

	score := s.scoreRecord(rec, now)
	if score < 0 || score > 100 {
		return fmt.Errorf("importance %d out of range", score)
	}
	rec.entry.Importance = score
	return nil
}
