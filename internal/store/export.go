package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/evalstore/internal/model"
)

// ExportEvaluations builds export-ready documents for every evaluation,
// newest first, each with its questions, alternatives and question score.
func (s *Store) ExportEvaluations(ctx context.Context) ([]model.EvaluationExport, error) {
	evals, err := s.evaluations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	now := fromMillis(toMillis(s.opts.now()))
	results := make([]model.EvaluationExport, 0, len(evals))
	for _, ev := range evals {
		questions, err := s.questions.ListWithAlternatives(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("questions of evaluation %d: %w", ev.ID, err)
		}
		total, err := s.questions.TotalScore(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("total score of evaluation %d: %w", ev.ID, err)
		}

		var incomplete []int64
		for _, q := range questions {
			if !hasCorrect(q.Alternatives) {
				incomplete = append(incomplete, q.ID)
			}
		}

		results = append(results, model.EvaluationExport{
			EvaluationView: ev,
			Active:         ev.ActiveAt(now),
			QuestionScore:  total,
			Questions:      questions,
			Incomplete:     incomplete,
		})
	}
	return results, nil
}

func hasCorrect(alts []model.Alternative) bool {
	for _, a := range alts {
		if a.Correct {
			return true
		}
	}
	return false
}
