package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/evalstore/internal/model"
)

const (
	insertQuestionSQL = `INSERT INTO Preguntas (evaluacion_id, texto_pregunta, puntaje, orden) VALUES (?, ?, ?, ?)`

	selectQuestionViewSQL = `SELECT p.id, p.evaluacion_id, e.nombre AS evaluacion_nombre, p.texto_pregunta, p.puntaje, p.orden
		FROM Preguntas p
		LEFT JOIN Evaluaciones e ON p.evaluacion_id = e.id`
)

type questionRow struct {
	ID             int64          `db:"id"`
	EvaluationID   int64          `db:"evaluacion_id"`
	EvaluationName sql.NullString `db:"evaluacion_nombre"`
	Text           string         `db:"texto_pregunta"`
	Score          float64        `db:"puntaje"`
	Order          int            `db:"orden"`
}

func (r questionRow) view() model.QuestionView {
	return model.QuestionView{
		Question: model.Question{
			ID:           r.ID,
			EvaluationID: r.EvaluationID,
			Text:         r.Text,
			Score:        r.Score,
			Order:        r.Order,
		},
		EvaluationName: r.EvaluationName.String,
	}
}

// questionAlternativeRow is one row of the question/alternative outer join.
type questionAlternativeRow struct {
	ID              int64          `db:"id"`
	EvaluationID    int64          `db:"evaluacion_id"`
	Text            string         `db:"texto_pregunta"`
	Score           float64        `db:"puntaje"`
	Order           int            `db:"orden"`
	AlternativeID   sql.NullInt64  `db:"alternativa_id"`
	AlternativeText sql.NullString `db:"texto_alternativa"`
	Correct         sql.NullBool   `db:"es_correcta"`
}

// QuestionRepository persists the questions of evaluations.
type QuestionRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewQuestionRepository returns a repository over the shared handle db.
func NewQuestionRepository(db *sqlx.DB, opts ...Option) *QuestionRepository {
	o := newOptions(opts)
	return &QuestionRepository{db: db, log: o.log}
}

// Create stores one question and returns its ID.
func (r *QuestionRepository) Create(ctx context.Context, q model.Question) (int64, error) {
	text, err := cleanText(q.Text)
	if err != nil {
		return 0, fmt.Errorf("create question: %w", err)
	}
	id, err := insertQuestion(ctx, r.db, q.EvaluationID, text, q.Score, q.Order)
	if err != nil {
		r.log.Error("failed to create question", "evaluation_id", q.EvaluationID, "error", err)
		return 0, fmt.Errorf("create question: %w", err)
	}
	r.log.Debug("created question", "id", id, "evaluation_id", q.EvaluationID, "order", q.Order)
	return id, nil
}

// List returns every question ordered by evaluation and display order.
func (r *QuestionRepository) List(ctx context.Context) ([]model.QuestionView, error) {
	return r.selectViews(ctx, selectQuestionViewSQL+` ORDER BY p.evaluacion_id ASC, p.orden ASC, p.id ASC`)
}

// Get returns a question by ID.
func (r *QuestionRepository) Get(ctx context.Context, id int64) (*model.QuestionView, error) {
	var row questionRow
	err := sqlx.GetContext(ctx, r.db, &row, selectQuestionViewSQL+` WHERE p.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	v := row.view()
	return &v, nil
}

// ListByEvaluation returns the questions of an evaluation in display order.
func (r *QuestionRepository) ListByEvaluation(ctx context.Context, evaluationID int64) ([]model.QuestionView, error) {
	return r.selectViews(ctx,
		selectQuestionViewSQL+` WHERE p.evaluacion_id = ? ORDER BY p.orden ASC, p.id ASC`, evaluationID)
}

// ListWithAlternatives returns the questions of an evaluation in display
// order, each with its alternatives ordered by ID. It issues a single outer
// join and groups the rows.
func (r *QuestionRepository) ListWithAlternatives(ctx context.Context, evaluationID int64) ([]model.QuestionWithAlternatives, error) {
	return listWithAlternatives(ctx, r.db, evaluationID)
}

// CreateMany stores all questions in one transaction, in input order.
// Either every question is stored and their IDs are returned in the same
// order, or none is and the error is a *BatchError naming the failing item.
func (r *QuestionRepository) CreateMany(ctx context.Context, questions []model.Question) ([]int64, error) {
	ids := make([]int64, 0, len(questions))
	err := withTx(ctx, r.db, "create questions", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, insertQuestionSQL)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i, q := range questions {
			text, err := cleanText(q.Text)
			if err != nil {
				return itemError(i, err)
			}
			res, err := stmt.ExecContext(ctx, q.EvaluationID, text, q.Score, q.Order)
			if err != nil {
				return itemError(i, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return itemError(i, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		r.log.Error("failed to create questions", "count", len(questions), "error", err)
		return nil, err
	}
	r.log.Debug("created questions", "count", len(ids))
	return ids, nil
}

// Update overwrites a question. ErrNotFound is returned when no question has q.ID.
func (r *QuestionRepository) Update(ctx context.Context, q model.Question) error {
	text, err := cleanText(q.Text)
	if err != nil {
		return fmt.Errorf("update question %d: %w", q.ID, err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE Preguntas SET evaluacion_id = ?, texto_pregunta = ?, puntaje = ?, orden = ? WHERE id = ?`,
		q.EvaluationID, text, q.Score, q.Order, q.ID,
	)
	if err != nil {
		return fmt.Errorf("update question %d: %w", q.ID, err)
	}
	return expectRow(res, "question", q.ID)
}

// Delete removes a question together with its alternatives in one
// transaction.
func (r *QuestionRepository) Delete(ctx context.Context, id int64) error {
	err := withTx(ctx, r.db, "delete question", func(tx *sqlx.Tx) error {
		if _, err := deleteAlternativesByQuestion(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM Preguntas WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectRow(res, "question", id)
	})
	if err != nil {
		return err
	}
	r.log.Info("deleted question", "id", id)
	return nil
}

// DeleteByEvaluation removes every question of an evaluation and all their
// alternatives in one transaction. It returns the number of questions removed.
func (r *QuestionRepository) DeleteByEvaluation(ctx context.Context, evaluationID int64) (int64, error) {
	var n int64
	err := withTx(ctx, r.db, "delete questions of evaluation", func(tx *sqlx.Tx) error {
		var err error
		n, err = deleteQuestionsByEvaluation(ctx, tx, evaluationID)
		return err
	})
	if err != nil {
		r.log.Error("failed to delete questions", "evaluation_id", evaluationID, "error", err)
		return 0, err
	}
	r.log.Info("deleted questions", "evaluation_id", evaluationID, "count", n)
	return n, nil
}

// Reorder assigns display order 1..n to questionIDs, in list order, within
// one transaction. Every ID must name a question of the evaluation; otherwise
// nothing changes and the error wraps ErrQuestionNotInEvaluation. Questions
// not listed keep their order.
func (r *QuestionRepository) Reorder(ctx context.Context, evaluationID int64, questionIDs []int64) error {
	seen := make(map[int64]bool, len(questionIDs))
	for i, id := range questionIDs {
		if seen[id] {
			return &BatchError{Op: "reorder questions", Index: i,
				Err: fmt.Errorf("%w: %d", ErrDuplicateQuestion, id)}
		}
		seen[id] = true
	}

	err := withTx(ctx, r.db, "reorder questions", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `UPDATE Preguntas SET orden = ? WHERE id = ? AND evaluacion_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i, id := range questionIDs {
			res, err := stmt.ExecContext(ctx, i+1, id, evaluationID)
			if err != nil {
				return itemError(i, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return itemError(i, err)
			}
			if n == 0 {
				return itemError(i, fmt.Errorf("%w: question %d, evaluation %d",
					ErrQuestionNotInEvaluation, id, evaluationID))
			}
		}
		return nil
	})
	if err != nil {
		r.log.Warn("failed to reorder questions", "evaluation_id", evaluationID, "error", err)
		return err
	}
	r.log.Info("reordered questions", "evaluation_id", evaluationID, "count", len(questionIDs))
	return nil
}

// NextOrder returns the display order following the evaluation's last
// question, or 1 when it has none.
func (r *QuestionRepository) NextOrder(ctx context.Context, evaluationID int64) (int, error) {
	var next int
	err := sqlx.GetContext(ctx, r.db, &next,
		`SELECT COALESCE(MAX(orden), 0) + 1 FROM Preguntas WHERE evaluacion_id = ?`, evaluationID)
	return next, err
}

// CountByEvaluation returns the number of questions of an evaluation.
func (r *QuestionRepository) CountByEvaluation(ctx context.Context, evaluationID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM Preguntas WHERE evaluacion_id = ?`, evaluationID)
	return count, err
}

// TotalScore returns the sum of the question scores of an evaluation, 0 when
// it has no questions.
func (r *QuestionRepository) TotalScore(ctx context.Context, evaluationID int64) (float64, error) {
	var total float64
	err := sqlx.GetContext(ctx, r.db, &total,
		`SELECT COALESCE(SUM(puntaje), 0) FROM Preguntas WHERE evaluacion_id = ?`, evaluationID)
	return total, err
}

// HasAlternatives reports whether the question has any alternative.
func (r *QuestionRepository) HasAlternatives(ctx context.Context, questionID int64) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM Alternativas WHERE pregunta_id = ?`, questionID)
	return count > 0, err
}

func (r *QuestionRepository) selectViews(ctx context.Context, query string, args ...any) ([]model.QuestionView, error) {
	var rows []questionRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	views := make([]model.QuestionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

func insertQuestion(ctx context.Context, ex sqlx.ExecerContext, evaluationID int64, text string, score float64, order int) (int64, error) {
	res, err := ex.ExecContext(ctx, insertQuestionSQL, evaluationID, text, score, order)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func listWithAlternatives(ctx context.Context, q sqlx.QueryerContext, evaluationID int64) ([]model.QuestionWithAlternatives, error) {
	var rows []questionAlternativeRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT p.id, p.evaluacion_id, p.texto_pregunta, p.puntaje, p.orden,
		        a.id AS alternativa_id, a.texto_alternativa, a.es_correcta
		 FROM Preguntas p
		 LEFT JOIN Alternativas a ON p.id = a.pregunta_id
		 WHERE p.evaluacion_id = ?
		 ORDER BY p.orden ASC, p.id ASC, a.id ASC`, evaluationID)
	if err != nil {
		return nil, err
	}
	return groupAlternatives(rows), nil
}

// groupAlternatives folds join rows into questions, keeping the first-seen
// order of questions and the row order of alternatives. Rows with a null
// alternative contribute only their question.
func groupAlternatives(rows []questionAlternativeRow) []model.QuestionWithAlternatives {
	questions := make([]model.QuestionWithAlternatives, 0)
	index := make(map[int64]int)
	for _, row := range rows {
		i, ok := index[row.ID]
		if !ok {
			i = len(questions)
			index[row.ID] = i
			questions = append(questions, model.QuestionWithAlternatives{
				Question: model.Question{
					ID:           row.ID,
					EvaluationID: row.EvaluationID,
					Text:         row.Text,
					Score:        row.Score,
					Order:        row.Order,
				},
				Alternatives: []model.Alternative{},
			})
		}
		if !row.AlternativeID.Valid {
			continue
		}
		questions[i].Alternatives = append(questions[i].Alternatives, model.Alternative{
			ID:         row.AlternativeID.Int64,
			QuestionID: row.ID,
			Text:       row.AlternativeText.String,
			Correct:    row.Correct.Bool,
		})
	}
	return questions
}

// deleteQuestionsByEvaluation runs the question cascade on ex, which is
// expected to be a transaction.
func deleteQuestionsByEvaluation(ctx context.Context, ex sqlx.ExtContext, evaluationID int64) (int64, error) {
	var ids []int64
	if err := sqlx.SelectContext(ctx, ex, &ids,
		`SELECT id FROM Preguntas WHERE evaluacion_id = ?`, evaluationID); err != nil {
		return 0, fmt.Errorf("list questions of evaluation %d: %w", evaluationID, err)
	}
	for i, id := range ids {
		if _, err := deleteAlternativesByQuestion(ctx, ex, id); err != nil {
			return 0, itemError(i, err)
		}
	}
	res, err := ex.ExecContext(ctx, `DELETE FROM Preguntas WHERE evaluacion_id = ?`, evaluationID)
	if err != nil {
		return 0, fmt.Errorf("delete questions of evaluation %d: %w", evaluationID, err)
	}
	return res.RowsAffected()
}
