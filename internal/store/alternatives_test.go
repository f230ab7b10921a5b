package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/evalstore/internal/model"
)

func TestAlternativeCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Alternatives()
	evalID := createEvaluation(t, s, testEvaluation("Parcial"))
	qid := createQuestion(t, s, evalID, "¿Capital de Chile?", 1)

	wrong := createAlternative(t, s, qid, "Lima", false)
	right := createAlternative(t, s, qid, "<i>Santiago</i>", true)

	got, err := repo.Get(ctx, right)
	require.NoError(t, err)
	assert.Equal(t, "Santiago", got.Text)
	assert.True(t, got.Correct)
	assert.Equal(t, "¿Capital de Chile?", got.QuestionText)

	list, err := repo.ListByQuestion(ctx, qid)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, wrong, list[0].ID)
	assert.Equal(t, right, list[1].ID)

	correct, err := repo.ListCorrectByQuestion(ctx, qid)
	require.NoError(t, err)
	require.Len(t, correct, 1)
	assert.Equal(t, right, correct[0].ID)

	upd := got.Alternative
	upd.Correct = false
	require.NoError(t, repo.Update(ctx, upd))
	has, err := repo.HasCorrectAnswer(ctx, qid)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.Delete(ctx, wrong))
	_, err = repo.Get(ctx, wrong)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, wrong), ErrNotFound)

	upd.ID = 9999
	assert.ErrorIs(t, repo.Update(ctx, upd), ErrNotFound)

	_, err = repo.Create(ctx, model.Alternative{QuestionID: qid, Text: "<p></p>"})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestAlternativeHasCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Alternatives()
	evalID := createEvaluation(t, s, testEvaluation("Parcial"))
	qid := createQuestion(t, s, evalID, "Pregunta", 1)

	has, err := repo.HasCorrectAnswer(ctx, qid)
	require.NoError(t, err)
	assert.False(t, has, "no alternatives")

	createAlternative(t, s, qid, "no", false)
	has, err = repo.HasCorrectAnswer(ctx, qid)
	require.NoError(t, err)
	assert.False(t, has, "only incorrect alternatives")

	createAlternative(t, s, qid, "sí", true)
	has, err = repo.HasCorrectAnswer(ctx, qid)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAlternativeCreateMany(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Alternatives()
	evalID := createEvaluation(t, s, testEvaluation("Parcial"))
	qid := createQuestion(t, s, evalID, "Pregunta", 1)

	ids, err := repo.CreateMany(ctx, []model.Alternative{
		{QuestionID: qid, Text: "a"},
		{QuestionID: qid, Text: "b", Correct: true},
		{QuestionID: qid, Text: "c"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	_, err = repo.CreateMany(ctx, []model.Alternative{
		{QuestionID: qid, Text: "d"},
		{QuestionID: qid, Text: "e"},
		{QuestionID: 9999, Text: "f"},
	})
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 2, be.Index)

	list, err := repo.ListByQuestion(ctx, qid)
	require.NoError(t, err)
	assert.Len(t, list, 3, "rows before the failing one are rolled back")

	ids, err = repo.CreateMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAlternativeListAndDeleteByQuestion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Alternatives()
	evalID := createEvaluation(t, s, testEvaluation("Parcial"))
	q1 := createQuestion(t, s, evalID, "Uno", 1)
	q2 := createQuestion(t, s, evalID, "Dos", 2)

	b1 := createAlternative(t, s, q2, "b1", true)
	a1 := createAlternative(t, s, q1, "a1", true)
	a2 := createAlternative(t, s, q1, "a2", false)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{a1, a2, b1}, []int64{all[0].ID, all[1].ID, all[2].ID})

	n, err := repo.DeleteByQuestion(ctx, q1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteByQuestion(ctx, q1)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b1, all[0].ID)
}
