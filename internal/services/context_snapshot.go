package services

import (
	"context"
	"errors"
	"fmt"
	"phicontext/internal/models"
	"sort"
)

// EntrySnapshotStore persists sanitized entries between process runs
type EntrySnapshotStore interface {
	SaveEntries(ctx context.Context, entries []models.ContextEntry) error
	LoadEntries(ctx context.Context) ([]models.ContextEntry, error)
}

// Snapshot writes every unexpired entry to store and returns how many were written.
// The store's previous contents are replaced.
func (s *ContextCacheService) Snapshot(ctx context.Context, store EntrySnapshotStore) (int, error) {
	if store == nil {
		return 0, errors.New("snapshot store is nil")
	}

	now := s.now()

	s.mu.RLock()
	recs := make([]*contextRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.entry.IsExpired(now) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	entries := make([]models.ContextEntry, len(recs))
	for i, rec := range recs {
		entries[i] = *rec.snapshot()
	}
	s.mu.RUnlock()

	if err := store.SaveEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to save context snapshot: %w", err)
	}

	s.logger.Info("context snapshot saved", "entries", len(entries))
	return len(entries), nil
}

// Restore loads entries from store into the cache and returns how many were restored.
// Every entry passes the sanitization gate again; expired, mistyped or invalid
// entries are skipped. Access statistics are kept and importance is recomputed.
func (s *ContextCacheService) Restore(ctx context.Context, store EntrySnapshotStore) (int, error) {
	if store == nil {
		return 0, errors.New("snapshot store is nil")
	}

	entries, err := store.LoadEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load context snapshot: %w", err)
	}

	now := s.now()
	restored, skipped := 0, 0

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return restored, fmt.Errorf("restore interrupted after %d entries: %w", restored, err)
		}

		e := entries[i].Clone()
		if e.ID == "" || e.IsExpired(now) {
			skipped++
			continue
		}

		prepared, err := s.prepareEntry(e.ID, e, now)
		if err != nil {
			skipped++
			s.logger.Warn("skipping snapshot entry", "entry_key", e.ID, "error", err)
			continue
		}
		if prepared.Timestamp.IsZero() {
			prepared.Timestamp = now
		}
		prepared.RelevanceScore = clamp01(prepared.RelevanceScore)

		s.mu.Lock()
		s.storeLocked(prepared.ID, prepared, now, true)
		s.mu.Unlock()
		restored++
	}

	s.logger.Info("context snapshot restored", "restored", restored, "skipped", skipped)
	return restored, nil
}
