package services

import (
	"math"
	"phicontext/internal/models"
	"testing"
	"time"
)

// TestCalculateRecencyScore tests the exponential recency decay
func TestCalculateRecencyScore(t *testing.T) {
	tests := []struct {
		name          string
		ageDays       float64
		expectedScore float64
		tolerance     float64
	}{
		{name: "Today", ageDays: 0, expectedScore: 1.0, tolerance: 1e-9},
		{name: "30 days (~0.37)", ageDays: 30, expectedScore: 0.3679, tolerance: 0.001},
		{name: "40 days (~0.26)", ageDays: 40, expectedScore: 0.2636, tolerance: 0.001},
		{name: "90 days (~0.05)", ageDays: 90, expectedScore: 0.0498, tolerance: 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateRecencyScore(tt.ageDays)
			if math.Abs(score-tt.expectedScore) > tt.tolerance {
				t.Errorf("Expected score ~%.4f, got %.4f", tt.expectedScore, score)
			}
		})
	}
}

// TestRecencyStrictlyDecreasing verifies older entries always score lower
func TestRecencyStrictlyDecreasing(t *testing.T) {
	prev := calculateRecencyScore(0)
	for age := 0.5; age <= 365; age += 0.5 {
		score := calculateRecencyScore(age)
		if score >= prev {
			t.Fatalf("Recency not strictly decreasing at %.1f days: %.6f >= %.6f", age, score, prev)
		}
		prev = score
	}
}

// TestCalculateFrequencyScore tests logarithmic saturation
func TestCalculateFrequencyScore(t *testing.T) {
	tests := []struct {
		name          string
		accessCount   int64
		expectedScore float64
	}{
		{name: "0 accesses", accessCount: 0, expectedScore: 0.0},
		{name: "10 accesses", accessCount: 10, expectedScore: math.Log(11) / math.Log(101)},
		{name: "100 accesses", accessCount: 100, expectedScore: 1.0},
		{name: "500 accesses (capped)", accessCount: 500, expectedScore: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateFrequencyScore(tt.accessCount)
			if math.Abs(score-tt.expectedScore) > 1e-9 {
				t.Errorf("Expected score %.4f, got %.4f", tt.expectedScore, score)
			}
		})
	}
}

// TestFrequencyNonDecreasing verifies more accesses never lower the score
func TestFrequencyNonDecreasing(t *testing.T) {
	prev := calculateFrequencyScore(0)
	for count := int64(1); count <= 250; count++ {
		score := calculateFrequencyScore(count)
		if score < prev {
			t.Fatalf("Frequency decreased at %d accesses: %.6f < %.6f", count, score, prev)
		}
		prev = score
	}
}

func TestCalculateCompletenessScore(t *testing.T) {
	tests := []struct {
		removed  int
		expected float64
	}{
		{0, 1.0}, {1, 0.8}, {4, 0.8}, {5, 0.6}, {9, 0.6}, {10, 0.4}, {25, 0.4},
	}

	for _, tt := range tests {
		if score := calculateCompletenessScore(tt.removed); score != tt.expected {
			t.Errorf("removed=%d: expected %.1f, got %.1f", tt.removed, tt.expected, score)
		}
	}
}

func TestCalculateAccuracyScore(t *testing.T) {
	tests := []struct {
		ageDays  float64
		expected float64
	}{
		{0, 1.0}, {6.9, 1.0}, {7, 0.9}, {29.9, 0.9}, {30, 0.8}, {40, 0.8}, {89.9, 0.8}, {90, 0.7}, {400, 0.7},
	}

	for _, tt := range tests {
		if score := calculateAccuracyScore(tt.ageDays); score != tt.expected {
			t.Errorf("age=%.1f: expected %.1f, got %.1f", tt.ageDays, tt.expected, score)
		}
	}
}

// TestScoreFactorsFortyDayOldEntry covers a 40-day-old entry
func TestScoreFactorsFortyDayOldEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &models.ContextEntry{
		Timestamp:      now.AddDate(0, 0, -40),
		RelevanceScore: 1.0,
	}

	f := ScoreFactors(entry, now)

	if math.Abs(f.Recency-math.Exp(-40.0/30.0)) > 1e-9 {
		t.Errorf("Expected recency %.4f, got %.4f", math.Exp(-40.0/30.0), f.Recency)
	}
	if math.Abs(f.Recency-0.2636) > 0.001 {
		t.Errorf("Expected recency ~0.2636, got %.4f", f.Recency)
	}
	if f.Accuracy != 0.8 {
		t.Errorf("Expected accuracy 0.8, got %.2f", f.Accuracy)
	}
}

// TestCalculateImportance tests the complete weighted score
func TestCalculateImportance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	weights := DefaultScoringWeights()

	tests := []struct {
		name     string
		entry    *models.ContextEntry
		expected int
	}{
		{
			name: "Fresh, unaccessed, fully relevant, nothing removed",
			entry: &models.ContextEntry{
				Timestamp:      now,
				RelevanceScore: 1.0,
			},
			// 0.25 + 0 + 0.30 + 0.15 + 0.10
			expected: 80,
		},
		{
			name: "Fresh, 100 accesses",
			entry: &models.ContextEntry{
				Timestamp:      now,
				RelevanceScore: 1.0,
				Metadata:       models.EntryMetadata{AccessCount: 100},
			},
			expected: 100,
		},
		{
			name: "Two removed fields, low relevance",
			entry: &models.ContextEntry{
				Timestamp:          now,
				RelevanceScore:     0.3,
				SanitizationReport: &models.SanitizationReport{RemovedFields: []string{"ssn", "email"}},
			},
			// 0.25 + 0 + 0.09 + 0.12 + 0.10
			expected: 56,
		},
		{
			name: "Very old, irrelevant",
			entry: &models.ContextEntry{
				Timestamp:      now.AddDate(-5, 0, 0),
				RelevanceScore: 0,
				SanitizationReport: &models.SanitizationReport{
					RemovedFields: make([]string, 12),
				},
			},
			// 0 + 0 + 0 + 0.06 + 0.07
			expected: 13,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := CalculateImportance(tt.entry, now, weights)
			if score != tt.expected {
				t.Errorf("Expected importance %d, got %d", tt.expected, score)
			}
		})
	}
}

// TestImportanceBounds checks the score stays in [0,100] for extreme inputs
func TestImportanceBounds(t *testing.T) {
	now := time.Now()
	weights := DefaultScoringWeights()

	entries := []*models.ContextEntry{
		{Timestamp: now.Add(48 * time.Hour), RelevanceScore: 5, Metadata: models.EntryMetadata{AccessCount: 1 << 40}},
		{Timestamp: now.AddDate(-50, 0, 0), RelevanceScore: -3},
		{RelevanceScore: math.NaN()},
	}

	for i, e := range entries {
		score := CalculateImportance(e, now, weights)
		if score < 0 || score > 100 {
			t.Errorf("entry %d: importance %d out of bounds", i, score)
		}
	}
}

func TestScoringWeightsValidate(t *testing.T) {
	if err := DefaultScoringWeights().Validate(); err != nil {
		t.Errorf("Default weights should validate: %v", err)
	}

	bad := DefaultScoringWeights()
	bad.Relevance = 0.5
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for weights summing above 1.0")
	}

	negative := ScoringWeights{Recency: 1.2, Frequency: -0.2}
	if err := negative.Validate(); err == nil {
		t.Error("Expected error for negative weight")
	}
}
