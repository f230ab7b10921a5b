package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/evalstore/internal/i18n"
	"github.com/pavelanni/evalstore/internal/model"
	"github.com/pavelanni/evalstore/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
}

// New creates a new Handler.
func New(s *store.Store) *Handler {
	return &Handler{store: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/evaluations", h.handleListEvaluations)
	r.Get("/evaluations/{evaluationID}", h.handleGetEvaluation)
	r.Get("/evaluations/{evaluationID}/questions", h.handleEvaluationQuestions)
	r.Get("/evaluations/{evaluationID}/summary", h.handleEvaluationSummary)
	r.Get("/questions/{questionID}/alternatives", h.handleQuestionAlternatives)
	r.Get("/questions/{questionID}/validity", h.handleQuestionValidity)
	r.Get("/export", h.handleExport)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/evaluations", h.handleImportEvaluation)
		r.Post("/evaluations/upload", h.handleUploadEvaluation)
		r.Put("/evaluations/{evaluationID}/published", h.handleSetPublished)
		r.Put("/evaluations/{evaluationID}/order", h.handleReorder)
		r.Delete("/evaluations/{evaluationID}", h.handleDeleteEvaluation)
	})
}

// handleListEvaluations lists evaluations, optionally filtered by one of
// the area, admin, published or active query parameters.
func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	repo := h.store.Evaluations()
	q := r.URL.Query()

	var (
		evals []model.EvaluationView
		err   error
	)
	switch {
	case q.Get("active") == "true":
		evals, err = repo.ListActive(ctx)
	case q.Get("published") == "true":
		evals, err = repo.ListPublished(ctx)
	case q.Has("area"):
		id, perr := strconv.ParseInt(q.Get("area"), 10, 64)
		if perr != nil {
			writeInvalidID(w, r, q.Get("area"))
			return
		}
		evals, err = repo.ListByArea(ctx, id)
	case q.Has("admin"):
		id, perr := strconv.ParseInt(q.Get("admin"), 10, 64)
		if perr != nil {
			writeInvalidID(w, r, q.Get("admin"))
			return
		}
		evals, err = repo.ListByAdmin(ctx, id)
	default:
		evals, err = repo.List(ctx)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evals)
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	ev, err := h.store.Evaluations().Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) handleEvaluationQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	if _, err := h.store.Evaluations().Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	questions, err := h.store.Questions().ListWithAlternatives(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

type evaluationSummary struct {
	EvaluationID int64   `json:"evaluation_id"`
	Questions    int     `json:"questions"`
	TotalScore   float64 `json:"total_score"`
	NextOrder    int     `json:"next_order"`
	Active       bool    `json:"active"`
}

func (h *Handler) handleEvaluationSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	ctx := r.Context()
	active, err := h.store.Evaluations().IsActive(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum := evaluationSummary{EvaluationID: id, Active: active}
	if sum.Questions, err = h.store.Questions().CountByEvaluation(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	if sum.TotalScore, err = h.store.Questions().TotalScore(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	if sum.NextOrder, err = h.store.Questions().NextOrder(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleQuestionAlternatives(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var (
		alts []model.AlternativeView
		err  error
	)
	if r.URL.Query().Get("correct") == "true" {
		alts, err = h.store.Alternatives().ListCorrectByQuestion(r.Context(), id)
	} else {
		alts, err = h.store.Alternatives().ListByQuestion(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alts)
}

type questionValidity struct {
	QuestionID       int64 `json:"question_id"`
	HasAlternatives  bool  `json:"has_alternatives"`
	HasCorrectAnswer bool  `json:"has_correct_answer"`
	Valid            bool  `json:"valid"`
}

func (h *Handler) handleQuestionValidity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.store.Questions().Get(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	v := questionValidity{QuestionID: id}
	var err error
	if v.HasAlternatives, err = h.store.Questions().HasAlternatives(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	if v.HasCorrectAnswer, err = h.store.Alternatives().HasCorrectAnswer(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	v.Valid = v.HasCorrectAnswer
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	evals, err := h.store.ExportEvaluations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Export{
		ExportedAt:  time.Now().UTC(),
		Count:       len(evals),
		Evaluations: evals,
	})
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeInvalidID(w, r, raw)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeInvalidID(w http.ResponseWriter, r *http.Request, raw string) {
	writeJSON(w, http.StatusBadRequest, errorBody{i18n.Td(r.Context(), "ErrInvalidID", map[string]any{"Value": raw})})
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorBody{i18n.T(r.Context(), msgID)})
}

// writeError maps a store error onto a status and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, r, status, msgID)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, store.ErrEmptyText):
		return http.StatusUnprocessableEntity, "ErrEmptyText"
	case errors.Is(err, store.ErrInvalidWindow):
		return http.StatusUnprocessableEntity, "ErrInvalidWindow"
	case errors.Is(err, store.ErrQuestionNotInEvaluation):
		return http.StatusUnprocessableEntity, "ErrQuestionNotInEvaluation"
	case errors.Is(err, store.ErrDuplicateQuestion):
		return http.StatusUnprocessableEntity, "ErrDuplicateQuestion"
	case errors.Is(err, store.ErrEvaluationHasQuestions):
		return http.StatusConflict, "ErrEvaluationHasQuestions"
	default:
		return http.StatusInternalServerError, "ErrInternal"
	}
}
