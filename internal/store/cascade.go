package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/evalstore/internal/model"
)

// DeleteEvaluation removes an evaluation with all its questions and their
// alternatives in one transaction. Nothing is removed when the evaluation
// does not exist.
func (s *Store) DeleteEvaluation(ctx context.Context, id int64) error {
	var questions int64
	err := withTx(ctx, s.db, "delete evaluation", func(tx *sqlx.Tx) error {
		var err error
		if questions, err = deleteQuestionsByEvaluation(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM Evaluaciones WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectRow(res, "evaluation", id)
	})
	if err != nil {
		s.opts.log.Error("failed to delete evaluation", "id", id, "error", err)
		return err
	}
	s.opts.log.Info("deleted evaluation", "id", id, "questions", questions)
	return nil
}

// ImportEvaluation stores a full evaluation document in one transaction and
// returns the new evaluation ID. Questions with a zero order get their
// 1-based position in the document.
func (s *Store) ImportEvaluation(ctx context.Context, doc model.EvaluationImport) (int64, error) {
	var (
		evalID       int64
		alternatives int
	)
	err := withTx(ctx, s.db, "import evaluation", func(tx *sqlx.Tx) error {
		var err error
		evalID, err = insertEvaluation(ctx, tx, doc.Evaluation(), s.opts.now())
		if err != nil {
			return fmt.Errorf("evaluation: %w", err)
		}

		for i, q := range doc.Questions {
			text, err := cleanText(q.Text)
			if err != nil {
				return itemError(i, err)
			}
			order := q.Order
			if order == 0 {
				order = i + 1
			}
			qid, err := insertQuestion(ctx, tx, evalID, text, q.Score, order)
			if err != nil {
				return itemError(i, err)
			}

			hasCorrect := false
			for j, a := range q.Alternatives {
				altText, err := cleanText(a.Text)
				if err != nil {
					return itemError(i, fmt.Errorf("alternative %d: %w", j, err))
				}
				if _, err := insertAlternative(ctx, tx, qid, altText, a.Correct); err != nil {
					return itemError(i, fmt.Errorf("alternative %d: %w", j, err))
				}
				hasCorrect = hasCorrect || a.Correct
				alternatives++
			}
			if !hasCorrect {
				s.opts.log.Warn("question has no correct alternative",
					"evaluation", doc.Name, "position", i+1)
			}
		}
		return nil
	})
	if err != nil {
		s.opts.log.Error("failed to import evaluation", "name", doc.Name, "error", err)
		return 0, err
	}
	s.opts.log.Info("imported evaluation",
		"id", evalID, "name", doc.Name,
		"questions", len(doc.Questions), "alternatives", alternatives)
	return evalID, nil
}
