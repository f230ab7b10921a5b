package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/evalstore/internal/model"
	"github.com/pavelanni/evalstore/internal/sqlerr"
)

const (
	insertEvaluationSQL = `INSERT INTO Evaluaciones
		(nombre, area_id, admin_id, fecha_creacion, fecha_inicio, fecha_fin, duracion, puntaje, publicada)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectEvaluationViewSQL = `SELECT e.id, e.nombre, e.area_id, ar.nombre AS area_nombre,
		e.admin_id, ad.nombre AS admin_nombre, e.fecha_creacion, e.fecha_inicio, e.fecha_fin,
		e.duracion, e.puntaje, e.publicada
		FROM Evaluaciones e
		LEFT JOIN Areas_eva ar ON e.area_id = ar.id
		LEFT JOIN Administradores ad ON e.admin_id = ad.id`

	newestFirst = ` ORDER BY e.fecha_creacion DESC, e.id DESC`
)

type evaluationRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"nombre"`
	AreaID    int64          `db:"area_id"`
	AreaName  sql.NullString `db:"area_nombre"`
	AdminID   int64          `db:"admin_id"`
	AdminName sql.NullString `db:"admin_nombre"`
	CreatedAt int64          `db:"fecha_creacion"`
	StartsAt  int64          `db:"fecha_inicio"`
	EndsAt    int64          `db:"fecha_fin"`
	Duration  int            `db:"duracion"`
	Score     float64        `db:"puntaje"`
	Published bool           `db:"publicada"`
}

func (r evaluationRow) view() model.EvaluationView {
	return model.EvaluationView{
		Evaluation: model.Evaluation{
			ID:              r.ID,
			Name:            r.Name,
			AreaID:          r.AreaID,
			AdminID:         r.AdminID,
			CreatedAt:       fromMillis(r.CreatedAt),
			StartsAt:        fromMillis(r.StartsAt),
			EndsAt:          fromMillis(r.EndsAt),
			DurationMinutes: r.Duration,
			Score:           r.Score,
			Published:       r.Published,
		},
		AreaName:  r.AreaName.String,
		AdminName: r.AdminName.String,
	}
}

// EvaluationRepository persists evaluations and answers the publication and
// activity queries.
type EvaluationRepository struct {
	db  *sqlx.DB
	now func() time.Time
	log *slog.Logger
}

// NewEvaluationRepository returns a repository over the shared handle db.
func NewEvaluationRepository(db *sqlx.DB, opts ...Option) *EvaluationRepository {
	o := newOptions(opts)
	return &EvaluationRepository{db: db, now: o.now, log: o.log}
}

// Create stores an evaluation and returns its ID. CreatedAt is taken from
// the repository clock; the caller's value is ignored. All times are stored
// with millisecond precision, so finer fractions are dropped.
func (r *EvaluationRepository) Create(ctx context.Context, e model.Evaluation) (int64, error) {
	id, err := insertEvaluation(ctx, r.db, e, r.now())
	if err != nil {
		r.log.Error("failed to create evaluation", "name", e.Name, "error", err)
		return 0, fmt.Errorf("create evaluation: %w", err)
	}
	r.log.Info("created evaluation", "id", id, "name", e.Name, "published", e.Published)
	return id, nil
}

// Get returns an evaluation by ID.
func (r *EvaluationRepository) Get(ctx context.Context, id int64) (*model.EvaluationView, error) {
	var row evaluationRow
	err := sqlx.GetContext(ctx, r.db, &row, selectEvaluationViewSQL+` WHERE e.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	v := row.view()
	return &v, nil
}

// Update overwrites every column of the evaluation except its creation time.
func (r *EvaluationRepository) Update(ctx context.Context, e model.Evaluation) error {
	name, err := checkEvaluation(e)
	if err != nil {
		return fmt.Errorf("update evaluation %d: %w", e.ID, err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE Evaluaciones SET nombre = ?, area_id = ?, admin_id = ?, fecha_inicio = ?, fecha_fin = ?,
		 duracion = ?, puntaje = ?, publicada = ? WHERE id = ?`,
		name, e.AreaID, e.AdminID, toMillis(e.StartsAt), toMillis(e.EndsAt),
		e.DurationMinutes, e.Score, e.Published, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update evaluation %d: %w", e.ID, err)
	}
	return expectRow(res, "evaluation", e.ID)
}

// Delete removes an evaluation row with a single statement. It fails with
// ErrEvaluationHasQuestions while questions still reference the evaluation;
// use Store.DeleteEvaluation for the full cascade.
func (r *EvaluationRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM Evaluaciones WHERE id = ?`, id)
	if sqlerr.IsForeignKeyViolation(err) {
		return fmt.Errorf("delete evaluation %d: %w: %w", id, ErrEvaluationHasQuestions, err)
	}
	if err != nil {
		return fmt.Errorf("delete evaluation %d: %w", id, err)
	}
	if err := expectRow(res, "evaluation", id); err != nil {
		return err
	}
	r.log.Info("deleted evaluation", "id", id)
	return nil
}

// List returns every evaluation, newest first.
func (r *EvaluationRepository) List(ctx context.Context) ([]model.EvaluationView, error) {
	return r.selectViews(ctx, selectEvaluationViewSQL+newestFirst)
}

// ListByArea returns the evaluations of an area, newest first.
func (r *EvaluationRepository) ListByArea(ctx context.Context, areaID int64) ([]model.EvaluationView, error) {
	return r.selectViews(ctx, selectEvaluationViewSQL+` WHERE e.area_id = ?`+newestFirst, areaID)
}

// ListByAdmin returns the evaluations created by an administrator, newest first.
func (r *EvaluationRepository) ListByAdmin(ctx context.Context, adminID int64) ([]model.EvaluationView, error) {
	return r.selectViews(ctx, selectEvaluationViewSQL+` WHERE e.admin_id = ?`+newestFirst, adminID)
}

// ListPublished returns the published evaluations, newest first.
func (r *EvaluationRepository) ListPublished(ctx context.Context) ([]model.EvaluationView, error) {
	return r.selectViews(ctx, selectEvaluationViewSQL+` WHERE e.publicada = 1`+newestFirst)
}

// ListActive returns the published evaluations whose window contains the
// current time, both ends inclusive, earliest start first.
func (r *EvaluationRepository) ListActive(ctx context.Context) ([]model.EvaluationView, error) {
	now := toMillis(r.clock())
	return r.selectViews(ctx,
		selectEvaluationViewSQL+` WHERE e.publicada = 1 AND e.fecha_inicio <= ? AND e.fecha_fin >= ?
		 ORDER BY e.fecha_inicio ASC, e.id ASC`, now, now)
}

// SetPublished sets the publication flag of an evaluation.
func (r *EvaluationRepository) SetPublished(ctx context.Context, id int64, published bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE Evaluaciones SET publicada = ? WHERE id = ?`, published, id)
	if err != nil {
		return fmt.Errorf("set published %d: %w", id, err)
	}
	if err := expectRow(res, "evaluation", id); err != nil {
		return err
	}
	r.log.Info("set evaluation publication", "id", id, "published", published)
	return nil
}

// IsActive reports whether the evaluation is published and open at the
// current time. It agrees with ListActive for every clock value.
func (r *EvaluationRepository) IsActive(ctx context.Context, id int64) (bool, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return e.ActiveAt(r.clock()), nil
}

// clock returns the current time at the precision times are stored with.
func (r *EvaluationRepository) clock() time.Time {
	return fromMillis(toMillis(r.now()))
}

// Count returns the number of evaluations.
func (r *EvaluationRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM Evaluaciones`)
	return n, err
}

// CountByPublished returns the number of evaluations with the given
// publication flag.
func (r *EvaluationRepository) CountByPublished(ctx context.Context, published bool) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM Evaluaciones WHERE publicada = ?`, published)
	return n, err
}

func (r *EvaluationRepository) selectViews(ctx context.Context, query string, args ...any) ([]model.EvaluationView, error) {
	var rows []evaluationRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	views := make([]model.EvaluationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

// checkEvaluation returns the cleaned name of e, or the reason e cannot be
// stored.
func checkEvaluation(e model.Evaluation) (string, error) {
	name, err := cleanText(e.Name)
	if err != nil {
		return "", err
	}
	if e.EndsAt.Before(e.StartsAt) {
		return "", ErrInvalidWindow
	}
	return name, nil
}

func insertEvaluation(ctx context.Context, ex sqlx.ExecerContext, e model.Evaluation, createdAt time.Time) (int64, error) {
	name, err := checkEvaluation(e)
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, insertEvaluationSQL,
		name, e.AreaID, e.AdminID, toMillis(createdAt), toMillis(e.StartsAt), toMillis(e.EndsAt),
		e.DurationMinutes, e.Score, e.Published,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
