package model

import "time"

// Export is the top-level JSON structure for evaluation export.
type Export struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Count       int                `json:"count"`
	Evaluations []EvaluationExport `json:"evaluations"`
}

// EvaluationExport holds one evaluation with its questions for export.
type EvaluationExport struct {
	EvaluationView
	Active        bool                       `json:"active"`
	QuestionScore float64                    `json:"question_score"`
	Questions     []QuestionWithAlternatives `json:"questions"`
	// Incomplete lists question IDs with no correct alternative.
	Incomplete []int64 `json:"incomplete,omitempty"`
}
