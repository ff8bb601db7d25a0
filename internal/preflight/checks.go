package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"phicontext/internal/config"
	"time"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is satisfied by every snapshot store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	cfg   *config.Config
	store Pinger
}

// NewChecker creates a new preflight checker. store may be nil when snapshots are disabled.
func NewChecker(cfg *config.Config, store Pinger) *Checker {
	return &Checker{cfg: cfg, store: store}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkSnapshotStore(),
		c.checkSnapshotEncryption(),
		c.checkAnonymizationSecret(),
		c.checkRelevanceFile(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkSnapshotStore verifies the snapshot store is reachable
func (c *Checker) checkSnapshotStore() CheckResult {
	if c.store == nil {
		return CheckResult{
			Name:    "Snapshot Store",
			Status:  "warning",
			Message: "No snapshot store configured, cache contents are lost on restart",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Snapshot Store",
			Status:  "fail",
			Message: "Cannot reach snapshot store",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Snapshot Store",
		Status:  "pass",
		Message: "Snapshot store reachable",
	}
}

// checkSnapshotEncryption warns when snapshots would be written unencrypted
func (c *Checker) checkSnapshotEncryption() CheckResult {
	switch {
	case c.store == nil:
		return CheckResult{
			Name:    "Snapshot Encryption",
			Status:  "pass",
			Message: "Skipped (snapshots disabled)",
		}
	case c.cfg.SnapshotEncryptionKey == "" && c.cfg.IsProduction():
		return CheckResult{
			Name:    "Snapshot Encryption",
			Status:  "fail",
			Message: "SNAPSHOT_ENCRYPTION_KEY is required for snapshots in production",
		}
	case c.cfg.SnapshotEncryptionKey == "":
		return CheckResult{
			Name:    "Snapshot Encryption",
			Status:  "warning",
			Message: "Snapshot records are stored unencrypted",
		}
	}

	return CheckResult{
		Name:    "Snapshot Encryption",
		Status:  "pass",
		Message: "Snapshot records are encrypted at rest",
	}
}

// checkAnonymizationSecret warns about per-process subject digests
func (c *Checker) checkAnonymizationSecret() CheckResult {
	if c.cfg.AnonymizationSecret == "" {
		return CheckResult{
			Name:    "Anonymization Secret",
			Status:  "warning",
			Message: "ANONYMIZATION_SECRET not set, subject digests change on every restart",
		}
	}

	return CheckResult{
		Name:    "Anonymization Secret",
		Status:  "pass",
		Message: "Anonymization secret configured",
	}
}

// checkRelevanceFile verifies the analysis relevance override is readable
func (c *Checker) checkRelevanceFile() CheckResult {
	path := c.cfg.AnalysisRelevanceFile
	if path == "" {
		return CheckResult{
			Name:    "Analysis Relevance",
			Status:  "pass",
			Message: "Using built-in analysis relevance map",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return CheckResult{
			Name:    "Analysis Relevance",
			Status:  "fail",
			Message: fmt.Sprintf("Cannot read %s", path),
			Error:   err,
		}
	}
	if info.IsDir() {
		return CheckResult{
			Name:    "Analysis Relevance",
			Status:  "fail",
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}

	return CheckResult{
		Name:    "Analysis Relevance",
		Status:  "pass",
		Message: fmt.Sprintf("Relevance overrides found at %s", path),
	}
}
