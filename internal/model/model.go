package model

import (
	"time"
)

// Evaluation is a timed, scored assessment composed of ordered questions.
type Evaluation struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	AreaID          int64     `json:"area_id"`
	AdminID         int64     `json:"admin_id"`
	CreatedAt       time.Time `json:"created_at"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Score           float64   `json:"score"`
	Published       bool      `json:"published"`
}

// ActiveAt reports whether the evaluation is published and now falls inside
// its start/end window, both ends inclusive.
func (e Evaluation) ActiveAt(now time.Time) bool {
	return e.Published && !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}

// EvaluationView is an evaluation joined with its area and administrator names.
// The names are empty when the referenced catalogue row does not exist.
type EvaluationView struct {
	Evaluation
	AreaName  string `json:"area_name"`
	AdminName string `json:"admin_name"`
}

// Question is a scored prompt belonging to one evaluation.
type Question struct {
	ID           int64   `json:"id"`
	EvaluationID int64   `json:"evaluation_id"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	Order        int     `json:"order"`
}

// QuestionView is a question joined with the name of its evaluation.
type QuestionView struct {
	Question
	EvaluationName string `json:"evaluation_name"`
}

// QuestionWithAlternatives groups a question with its answer options.
// Alternatives is never nil.
type QuestionWithAlternatives struct {
	Question
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one selectable answer option of a question.
type Alternative struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// AlternativeView is an alternative joined with the text of its question.
type AlternativeView struct {
	Alternative
	QuestionText string `json:"question_text"`
}

// AlternativeImport is used for loading alternatives from JSON.
type AlternativeImport struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// QuestionImport is used for loading questions from JSON.
// A zero Order is replaced by the question's position in the file.
type QuestionImport struct {
	Text         string              `json:"text"`
	Score        float64             `json:"score"`
	Order        int                 `json:"order"`
	Alternatives []AlternativeImport `json:"alternatives"`
}

// EvaluationImport is a full evaluation document: the evaluation row plus
// its questions and their alternatives.
type EvaluationImport struct {
	Name            string           `json:"name"`
	AreaID          int64            `json:"area_id"`
	AdminID         int64            `json:"admin_id"`
	StartsAt        time.Time        `json:"starts_at"`
	EndsAt          time.Time        `json:"ends_at"`
	DurationMinutes int              `json:"duration_minutes"`
	Score           float64          `json:"score"`
	Published       bool             `json:"published"`
	Questions       []QuestionImport `json:"questions"`
}

// Evaluation returns the evaluation row described by the import document.
func (ei EvaluationImport) Evaluation() Evaluation {
	return Evaluation{
		Name:            ei.Name,
		AreaID:          ei.AreaID,
		AdminID:         ei.AdminID,
		StartsAt:        ei.StartsAt,
		EndsAt:          ei.EndsAt,
		DurationMinutes: ei.DurationMinutes,
		Score:           ei.Score,
		Published:       ei.Published,
	}
}
