package services

import (
	"fmt"
	"os"
	"phicontext/internal/models"

	"gopkg.in/yaml.v3"
)

const (
	matchedRelevance   = 1.0
	unmatchedRelevance = 0.3
)

// AnalysisRelevance maps an analysis type to the context types that are
// directly relevant to it
type AnalysisRelevance map[string][]models.ContextType

// DefaultAnalysisRelevance returns the built-in analysis type map
func DefaultAnalysisRelevance() AnalysisRelevance {
	return AnalysisRelevance{
		"general": append([]models.ContextType(nil), models.AllContextTypes...),
		"diagnostic": {
			models.ContextMedicalHistory,
			models.ContextTestResults,
			models.ContextConditions,
			models.ContextVitalSigns,
			models.ContextImagingResults,
			models.ContextClinicalNotes,
		},
		"medication_review": {
			models.ContextMedications,
			models.ContextAllergies,
			models.ContextConditions,
			models.ContextTestResults,
		},
		"risk_assessment": {
			models.ContextMedicalHistory,
			models.ContextConditions,
			models.ContextVitalSigns,
			models.ContextTrends,
			models.ContextCorrelations,
		},
		"treatment_planning": {
			models.ContextConditions,
			models.ContextMedications,
			models.ContextProcedures,
			models.ContextAllergies,
			models.ContextClinicalNotes,
		},
		"trend_analysis": {
			models.ContextTrends,
			models.ContextTestResults,
			models.ContextVitalSigns,
			models.ContextCorrelations,
		},
		"lab_interpretation": {
			models.ContextTestResults,
			models.ContextTrends,
			models.ContextMedications,
		},
		"imaging_review": {
			models.ContextImagingResults,
			models.ContextProcedures,
			models.ContextClinicalNotes,
		},
	}
}

// Relevance returns 1.0 when contextType is listed for analysisType, otherwise 0.3.
// Unknown analysis types match nothing.
func (m AnalysisRelevance) Relevance(analysisType string, contextType models.ContextType) float64 {
	for _, t := range m[analysisType] {
		if t == contextType {
			return matchedRelevance
		}
	}
	return unmatchedRelevance
}

type analysisRelevanceFile struct {
	AnalysisTypes map[string][]string `yaml:"analysis_types"`
}

// LoadAnalysisRelevance reads a YAML override file and merges it over the defaults.
// Each listed analysis type replaces the default entry of the same name.
//
//	analysis_types:
//	  medication_review: [medications, allergies]
func LoadAnalysisRelevance(path string) (AnalysisRelevance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis relevance file: %w", err)
	}

	var file analysisRelevanceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse analysis relevance YAML: %w", err)
	}

	merged := DefaultAnalysisRelevance()
	for analysisType, names := range file.AnalysisTypes {
		types := make([]models.ContextType, 0, len(names))
		for _, name := range names {
			t := models.ContextType(name)
			if !t.Valid() {
				return nil, fmt.Errorf("analysis type %q: %w: %s", analysisType, ErrInvalidContextType, name)
			}
			types = append(types, t)
		}
		merged[analysisType] = types
	}

	return merged, nil
}
