package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/evalstore/internal/model"
)

var base = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evalstore.db")
	opts = append([]Option{WithLogger(discardLogger()), WithClock(func() time.Time { return base })}, opts...)
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: path}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvaluation(name string) model.Evaluation {
	return model.Evaluation{
		Name:            name,
		AreaID:          1,
		AdminID:         1,
		StartsAt:        base,
		EndsAt:          base.Add(2 * time.Hour),
		DurationMinutes: 90,
		Score:           20,
		Published:       true,
	}
}

func createEvaluation(t *testing.T, s *Store, e model.Evaluation) int64 {
	t.Helper()
	id, err := s.Evaluations().Create(context.Background(), e)
	require.NoError(t, err)
	return id
}

func createQuestion(t *testing.T, s *Store, evalID int64, text string, order int) int64 {
	t.Helper()
	id, err := s.Questions().Create(context.Background(), model.Question{
		EvaluationID: evalID,
		Text:         text,
		Score:        2,
		Order:        order,
	})
	require.NoError(t, err)
	return id
}

func createAlternative(t *testing.T, s *Store, questionID int64, text string, correct bool) int64 {
	t.Helper()
	id, err := s.Alternatives().Create(context.Background(), model.Alternative{
		QuestionID: questionID,
		Text:       text,
		Correct:    correct,
	})
	require.NoError(t, err)
	return id
}

func TestOpenMigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "evalstore.db")
	cfg := Config{Driver: DriverSQLite, Path: path}

	s, err := Open(ctx, cfg, WithLogger(discardLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer s.Close()

	var applied int
	require.NoError(t, s.DB().GetContext(ctx, &applied, `SELECT COUNT(*) FROM `+migrationTable))
	assert.Equal(t, 1, applied)
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Path: ":memory:"}, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Evaluations().Create(ctx, testEvaluation("Memoria"))
	require.NoError(t, err)
	n, err := s.Evaluations().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable sqlite file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "evalstore.db")
		_, err := Open(ctx, Config{Driver: DriverSQLite, Path: path}, WithLogger(discardLogger()))
		var ce *ConnectionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, DriverSQLite, ce.Driver)
		assert.Equal(t, path, ce.Target)
	})

	t.Run("incomplete mysql config", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverMySQL, Host: "db:3306"}, WithLogger(discardLogger()))
		var ce *ConnectionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, DriverMySQL, ce.Driver)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "postgres"}, WithLogger(discardLogger()))
		require.Error(t, err)
		var ce *ConnectionError
		assert.False(t, errors.As(err, &ce))
	})
}

func TestConfigDSN(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		dsn, err := Config{Path: "/tmp/x.db"}.dsn()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(dsn, "/tmp/x.db?"))
		assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	})

	t.Run("mysql defaults to utf8mb4", func(t *testing.T) {
		dsn, err := Config{Driver: DriverMySQL, Host: "db:3306", Name: "evals", User: "app", Password: "secret"}.dsn()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/evals?"), dsn)
		assert.Contains(t, dsn, "charset=utf8mb4")
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "clientFoundRows=true")
	})

	t.Run("mysql charset override", func(t *testing.T) {
		dsn, err := Config{Driver: DriverMySQL, Host: "db", Name: "evals", User: "app", Charset: "latin1"}.dsn()
		require.NoError(t, err)
		assert.Contains(t, dsn, "charset=latin1")
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := Config{Driver: DriverSQLite}.dsn()
		assert.Error(t, err)
	})
}

func TestImportedFileHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.ImportedFileHash(ctx, "/some/path.json")
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.SetImportedFileHash(ctx, "/some/path.json", "abc123"))
	hash, err = s.ImportedFileHash(ctx, "/some/path.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)

	// Update existing.
	require.NoError(t, s.SetImportedFileHash(ctx, "/some/path.json", "def456"))
	hash, err = s.ImportedFileHash(ctx, "/some/path.json")
	require.NoError(t, err)
	assert.Equal(t, "def456", hash)
}

func TestSplitStatements(t *testing.T) {
	body := upSection(`-- +migrate Up
-- tables
CREATE TABLE a (id INTEGER);

CREATE TABLE b (id INTEGER);
-- +migrate Down
DROP TABLE b;
`)
	got := splitStatements(body)
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"}, got)
}
