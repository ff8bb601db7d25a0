package services

import (
	"fmt"
	"math"
	"phicontext/internal/models"
	"time"
)

// ScoringWeights holds the weight of each importance factor. Weights must sum to 1.0.
type ScoringWeights struct {
	Recency      float64 // Default: 0.25
	Frequency    float64 // Default: 0.20
	Relevance    float64 // Default: 0.30
	Completeness float64 // Default: 0.15
	Accuracy     float64 // Default: 0.10
}

// DefaultScoringWeights returns the default importance weights
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Recency:      0.25,
		Frequency:    0.20,
		Relevance:    0.30,
		Completeness: 0.15,
		Accuracy:     0.10,
	}
}

// Validate rejects negative weights and weight sets that do not sum to 1.0
func (w ScoringWeights) Validate() error {
	for name, v := range map[string]float64{
		"recency":      w.Recency,
		"frequency":    w.Frequency,
		"relevance":    w.Relevance,
		"completeness": w.Completeness,
		"accuracy":     w.Accuracy,
	} {
		if v < 0 {
			return fmt.Errorf("%s weight must not be negative, got %v", name, v)
		}
	}
	sum := w.Recency + w.Frequency + w.Relevance + w.Completeness + w.Accuracy
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// ImportanceFactors are the five normalized (0-1) inputs of the importance score
type ImportanceFactors struct {
	Recency      float64
	Frequency    float64
	Relevance    float64
	Completeness float64
	Accuracy     float64
}

const (
	recencyDecayDays = 30.0
	frequencyCeiling = 100
)

// ScoreFactors computes the importance factors of entry as of now
func ScoreFactors(entry *models.ContextEntry, now time.Time) ImportanceFactors {
	ageDays := entryAgeDays(entry.Timestamp, now)
	return ImportanceFactors{
		Recency:      calculateRecencyScore(ageDays),
		Frequency:    calculateFrequencyScore(entry.Metadata.AccessCount),
		Relevance:    clamp01(entry.RelevanceScore),
		Completeness: calculateCompletenessScore(entry.RemovedFieldCount()),
		Accuracy:     calculateAccuracyScore(ageDays),
	}
}

// CalculateImportance returns the 0-100 importance of entry as of now
func CalculateImportance(entry *models.ContextEntry, now time.Time, weights ScoringWeights) int {
	return weights.Combine(ScoreFactors(entry, now))
}

// Combine applies the weights to f and scales the result to 0-100
func (w ScoringWeights) Combine(f ImportanceFactors) int {
	sum := w.Recency*f.Recency +
		w.Frequency*f.Frequency +
		w.Relevance*f.Relevance +
		w.Completeness*f.Completeness +
		w.Accuracy*f.Accuracy

	score := int(math.Round(sum * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func entryAgeDays(timestamp, now time.Time) float64 {
	if timestamp.IsZero() {
		return 0
	}
	days := now.Sub(timestamp).Hours() / 24.0
	if days < 0 {
		return 0
	}
	return days
}

// calculateRecencyScore uses exponential decay with a 30-day time constant
// RecencyScore = exp(-age_days / 30)
// - Today: 1.0
// - 30 days: ~0.37
// - 90 days: ~0.05
func calculateRecencyScore(ageDays float64) float64 {
	return math.Exp(-ageDays / recencyDecayDays)
}

// calculateFrequencyScore saturates logarithmically at 100 accesses
// FrequencyScore = ln(1 + access_count) / ln(101)
// - 0 accesses: 0.0
// - 10 accesses: ~0.52
// - 100+ accesses: 1.0
func calculateFrequencyScore(accessCount int64) float64 {
	if accessCount <= 0 {
		return 0.0
	}
	score := math.Log1p(float64(accessCount)) / math.Log(frequencyCeiling+1)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// calculateCompletenessScore penalizes payloads that lost fields to sanitization
func calculateCompletenessScore(removedFields int) float64 {
	switch {
	case removedFields <= 0:
		return 1.0
	case removedFields < 5:
		return 0.8
	case removedFields < 10:
		return 0.6
	default:
		return 0.4
	}
}

// calculateAccuracyScore assumes older clinical data is less likely to be current
func calculateAccuracyScore(ageDays float64) float64 {
	switch {
	case ageDays < 7:
		return 1.0
	case ageDays < 30:
		return 0.9
	case ageDays < 90:
		return 0.8
	default:
		return 0.7
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
