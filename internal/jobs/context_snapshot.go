package jobs

import (
	"context"
	"log"
	"phicontext/internal/services"
)

// ContextSnapshotJobName is the scheduler name of the periodic snapshot
const ContextSnapshotJobName = "context-snapshot"

// SnapshotWriter writes the cache contents to a snapshot store
type SnapshotWriter interface {
	Snapshot(ctx context.Context, store services.EntrySnapshotStore) (int, error)
}

// ContextSnapshotJob persists sanitized cache entries so a restart can restore them
type ContextSnapshotJob struct {
	cache SnapshotWriter
	store services.EntrySnapshotStore
}

// NewContextSnapshotJob creates a new snapshot job
func NewContextSnapshotJob(cache SnapshotWriter, store services.EntrySnapshotStore) *ContextSnapshotJob {
	return &ContextSnapshotJob{cache: cache, store: store}
}

// Run writes one snapshot
func (j *ContextSnapshotJob) Run(ctx context.Context) error {
	if j.cache == nil || j.store == nil {
		log.Println("[SNAPSHOT] Snapshot disabled (requires context cache and snapshot store)")
		return nil
	}

	written, err := j.cache.Snapshot(ctx, j.store)
	if err != nil {
		return err
	}

	log.Printf("[SNAPSHOT] Saved %d context entries", written)
	return nil
}
