package jobs

import (
	"context"
	"log"
	"phicontext/internal/services"
)

// ContextReanalysisJobName is the scheduler name of the importance sweep
const ContextReanalysisJobName = "context-reanalysis"

// ImportanceReanalyzer recomputes the importance of cached entries
type ImportanceReanalyzer interface {
	ReanalyzeImportance(ctx context.Context) (services.ReanalysisResult, error)
}

// ContextReanalysisJob periodically rescores every context entry so recency
// decay is reflected in eviction and ranking
type ContextReanalysisJob struct {
	cache ImportanceReanalyzer
}

// NewContextReanalysisJob creates a new reanalysis job
func NewContextReanalysisJob(cache ImportanceReanalyzer) *ContextReanalysisJob {
	return &ContextReanalysisJob{cache: cache}
}

// Run executes one sweep
func (j *ContextReanalysisJob) Run(ctx context.Context) error {
	if j.cache == nil {
		log.Println("[REANALYSIS] Reanalysis disabled (no context cache)")
		return nil
	}

	result, err := j.cache.ReanalyzeImportance(ctx)
	if err != nil {
		return err
	}

	if result.Failed > 0 {
		log.Printf("⚠️  [REANALYSIS] %d of %d entries failed to rescore", result.Failed, result.Total)
	}
	log.Printf("[REANALYSIS] Rescored %d entries, removed %d expired in %v",
		result.Rescored, result.Expired, result.Duration)
	return nil
}
