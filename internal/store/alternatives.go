package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/evalstore/internal/model"
	"github.com/pavelanni/evalstore/internal/textclean"
)

const (
	insertAlternativeSQL = `INSERT INTO Alternativas (pregunta_id, texto_alternativa, es_correcta) VALUES (?, ?, ?)`

	selectAlternativeViewSQL = `SELECT a.id, a.pregunta_id, p.texto_pregunta, a.texto_alternativa, a.es_correcta
		FROM Alternativas a
		LEFT JOIN Preguntas p ON a.pregunta_id = p.id`
)

type alternativeRow struct {
	ID           int64          `db:"id"`
	QuestionID   int64          `db:"pregunta_id"`
	QuestionText sql.NullString `db:"texto_pregunta"`
	Text         string         `db:"texto_alternativa"`
	Correct      bool           `db:"es_correcta"`
}

func (r alternativeRow) view() model.AlternativeView {
	return model.AlternativeView{
		Alternative: model.Alternative{
			ID:         r.ID,
			QuestionID: r.QuestionID,
			Text:       r.Text,
			Correct:    r.Correct,
		},
		QuestionText: r.QuestionText.String,
	}
}

// AlternativeRepository persists the answer options of questions.
type AlternativeRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewAlternativeRepository returns a repository over the shared handle db.
func NewAlternativeRepository(db *sqlx.DB, opts ...Option) *AlternativeRepository {
	o := newOptions(opts)
	return &AlternativeRepository{db: db, log: o.log}
}

// Create stores one alternative and returns its ID.
func (r *AlternativeRepository) Create(ctx context.Context, a model.Alternative) (int64, error) {
	text, err := cleanText(a.Text)
	if err != nil {
		return 0, fmt.Errorf("create alternative: %w", err)
	}
	id, err := insertAlternative(ctx, r.db, a.QuestionID, text, a.Correct)
	if err != nil {
		r.log.Error("failed to create alternative", "question_id", a.QuestionID, "error", err)
		return 0, fmt.Errorf("create alternative: %w", err)
	}
	r.log.Debug("created alternative", "id", id, "question_id", a.QuestionID)
	return id, nil
}

// List returns every alternative ordered by question and ID.
func (r *AlternativeRepository) List(ctx context.Context) ([]model.AlternativeView, error) {
	return r.selectViews(ctx, selectAlternativeViewSQL+` ORDER BY a.pregunta_id ASC, a.id ASC`)
}

// Get returns an alternative by ID.
func (r *AlternativeRepository) Get(ctx context.Context, id int64) (*model.AlternativeView, error) {
	var row alternativeRow
	err := sqlx.GetContext(ctx, r.db, &row, selectAlternativeViewSQL+` WHERE a.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alternative %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	v := row.view()
	return &v, nil
}

// ListByQuestion returns the alternatives of a question ordered by ID.
func (r *AlternativeRepository) ListByQuestion(ctx context.Context, questionID int64) ([]model.AlternativeView, error) {
	return r.selectViews(ctx, selectAlternativeViewSQL+` WHERE a.pregunta_id = ? ORDER BY a.id ASC`, questionID)
}

// ListCorrectByQuestion returns the correct alternatives of a question ordered by ID.
func (r *AlternativeRepository) ListCorrectByQuestion(ctx context.Context, questionID int64) ([]model.AlternativeView, error) {
	return r.selectViews(ctx,
		selectAlternativeViewSQL+` WHERE a.pregunta_id = ? AND a.es_correcta = 1 ORDER BY a.id ASC`, questionID)
}

// CreateMany stores all alternatives in one transaction, in input order.
// Either every alternative is stored and their IDs are returned in the same
// order, or none is and the error is a *BatchError naming the failing item.
func (r *AlternativeRepository) CreateMany(ctx context.Context, alts []model.Alternative) ([]int64, error) {
	ids := make([]int64, 0, len(alts))
	err := withTx(ctx, r.db, "create alternatives", func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, insertAlternativeSQL)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i, a := range alts {
			text, err := cleanText(a.Text)
			if err != nil {
				return itemError(i, err)
			}
			res, err := stmt.ExecContext(ctx, a.QuestionID, text, a.Correct)
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
		r.log.Error("failed to create alternatives", "count", len(alts), "error", err)
		return nil, err
	}
	r.log.Debug("created alternatives", "count", len(ids))
	return ids, nil
}

// HasCorrectAnswer reports whether the question has at least one correct
// alternative. The rule is advisory: writes do not enforce it.
func (r *AlternativeRepository) HasCorrectAnswer(ctx context.Context, questionID int64) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM Alternativas WHERE pregunta_id = ? AND es_correcta = 1`, questionID)
	return count > 0, err
}

// Update overwrites an alternative. ErrNotFound is returned when no
// alternative has a.ID.
func (r *AlternativeRepository) Update(ctx context.Context, a model.Alternative) error {
	text, err := cleanText(a.Text)
	if err != nil {
		return fmt.Errorf("update alternative %d: %w", a.ID, err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE Alternativas SET pregunta_id = ?, texto_alternativa = ?, es_correcta = ? WHERE id = ?`,
		a.QuestionID, text, a.Correct, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alternative %d: %w", a.ID, err)
	}
	return expectRow(res, "alternative", a.ID)
}

// Delete removes one alternative.
func (r *AlternativeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM Alternativas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alternative %d: %w", id, err)
	}
	return expectRow(res, "alternative", id)
}

// DeleteByQuestion removes every alternative of a question with a single
// statement and returns how many were removed. It opens no transaction of its
// own.
func (r *AlternativeRepository) DeleteByQuestion(ctx context.Context, questionID int64) (int64, error) {
	return deleteAlternativesByQuestion(ctx, r.db, questionID)
}

func (r *AlternativeRepository) selectViews(ctx context.Context, query string, args ...any) ([]model.AlternativeView, error) {
	var rows []alternativeRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	views := make([]model.AlternativeView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

func insertAlternative(ctx context.Context, ex sqlx.ExecerContext, questionID int64, text string, correct bool) (int64, error) {
	res, err := ex.ExecContext(ctx, insertAlternativeSQL, questionID, text, correct)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func deleteAlternativesByQuestion(ctx context.Context, ex sqlx.ExecerContext, questionID int64) (int64, error) {
	res, err := ex.ExecContext(ctx, `DELETE FROM Alternativas WHERE pregunta_id = ?`, questionID)
	if err != nil {
		return 0, fmt.Errorf("delete alternatives of question %d: %w", questionID, err)
	}
	return res.RowsAffected()
}

func cleanText(s string) (string, error) {
	text := textclean.Clean(s)
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

// expectRow turns a statement that matched no row into ErrNotFound.
func expectRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
