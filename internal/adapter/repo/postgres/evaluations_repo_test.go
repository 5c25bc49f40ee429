package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

var evaluationColumns = []string{
	"id", "student_id", "subject", "exam_date", "exam_topic", "score", "feedback",
	"created_by", "created_at", "updated_at", "api_cost", "api_model",
	"api_tokens_input", "api_tokens_output",
}

func sampleRecord() domain.EvaluationRecord {
	now := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)
	return domain.EvaluationRecord{
		ID: "eval_0123456789abcdef", StudentID: "u1", Subject: "Física",
		ExamDate: "2026-03-15", ExamTopic: "Dinámica", Score: 77,
		Feedback: "# RETROALIMENTACIÓN", CreatedBy: "i1",
		CreatedAt: now, UpdatedAt: now,
		APICost: 0.12, APIModel: "claude-sonnet-4-20250514",
		APITokensInput: 1000, APITokensOutput: 500,
	}
}

func recordRows(rec domain.EvaluationRecord) *pgxmock.Rows {
	return pgxmock.NewRows(evaluationColumns).AddRow(
		rec.ID, rec.StudentID, rec.Subject, rec.ExamDate, rec.ExamTopic, rec.Score,
		rec.Feedback, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt,
		rec.APICost, rec.APIModel, rec.APITokensInput, rec.APITokensOutput,
	)
}

func TestEvaluationRepo_Insert(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO evaluations").
		WithArgs(rec.ID, rec.StudentID, rec.Subject, rec.ExamDate, rec.ExamTopic,
			rec.Score, rec.Feedback, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt,
			rec.APICost, rec.APIModel, rec.APITokensInput, rec.APITokensOutput).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepo_Insert_Error(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)

	mock.ExpectExec("INSERT INTO evaluations").WillReturnError(errors.New("unique violation"))

	err := repo.Insert(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=evaluations.insert")
}

func TestEvaluationRepo_GetByID(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)
	rec := sampleRecord()

	mock.ExpectQuery("FROM evaluations").WithArgs(rec.ID).WillReturnRows(recordRows(rec))

	got, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEvaluationRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)

	mock.ExpectQuery("FROM evaluations").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluationRepo_UpdateScoreFeedback(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)
	now := time.Now()

	mock.ExpectExec("UPDATE evaluations").
		WithArgs("eval_abc", 82.0, "nuevo feedback", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateScoreFeedback(context.Background(), "eval_abc", 82, "nuevo feedback", now))
}

func TestEvaluationRepo_UpdateScoreFeedback_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)

	mock.ExpectExec("UPDATE evaluations").
		WithArgs("missing", 82.0, "x", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateScoreFeedback(context.Background(), "missing", 82, "x", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluationRepo_Exists(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1", "2026-03-15", "Dinámica").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := repo.Exists(context.Background(), "u1", "2026-03-15", "Dinámica")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestEvaluationRepo_ListByStudent(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)
	rec := sampleRecord()

	mock.ExpectQuery("FROM evaluations").
		WithArgs("u1", 10).
		WillReturnRows(recordRows(rec))

	recs, err := repo.ListByStudent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
}

func TestEvaluationRepo_StatsBySubject(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := postgres.NewEvaluationRepo(mock)

	mock.ExpectQuery("FROM evaluations").
		WithArgs("u1", "Física").
		WillReturnRows(pgxmock.NewRows([]string{"avg", "count", "last"}).AddRow(77.0, 3, "2026-03-15"))

	stats, err := repo.StatsBySubject(context.Background(), "u1", "Física")
	require.NoError(t, err)
	assert.InDelta(t, 77, stats.Average, 0.001)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, "2026-03-15", stats.LastExamDate)
}
