package usecase_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

type stubEvalRepo struct {
	inserted  []domain.EvaluationRecord
	updated   map[string]float64
	exists    bool
	existsErr error
	insertErr error
	getErr    error
	listed    []domain.EvaluationRecord
	stats     domain.EvaluationStats
}

func (r *stubEvalRepo) Insert(_ context.Context, rec domain.EvaluationRecord) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, rec)
	return nil
}

func (r *stubEvalRepo) GetByID(_ context.Context, id string) (domain.EvaluationRecord, error) {
	if r.getErr != nil {
		return domain.EvaluationRecord{}, r.getErr
	}
	for _, rec := range r.inserted {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.EvaluationRecord{ID: id}, nil
}

func (r *stubEvalRepo) UpdateScoreFeedback(_ context.Context, id string, score float64, _ string, _ time.Time) error {
	if r.updated == nil {
		r.updated = map[string]float64{}
	}
	r.updated[id] = score
	return nil
}

func (r *stubEvalRepo) Exists(_ context.Context, _, _, _ string) (bool, error) {
	return r.exists, r.existsErr
}

func (r *stubEvalRepo) ListByStudent(_ context.Context, _ string, _ int) ([]domain.EvaluationRecord, error) {
	return r.listed, nil
}

func (r *stubEvalRepo) StatsBySubject(_ context.Context, _, _ string) (domain.EvaluationStats, error) {
	return r.stats, nil
}

var evalIDRe = regexp.MustCompile(`^eval_[0-9a-f]{16}$`)

func TestGenerateEvaluationID(t *testing.T) {
	t.Parallel()
	a := usecase.GenerateEvaluationID("u1", "2026-03-15", "Dinámica")
	b := usecase.GenerateEvaluationID("u2", "2026-03-15", "Dinámica")
	assert.Regexp(t, evalIDRe, a)
	assert.Regexp(t, evalIDRe, b)
	assert.NotEqual(t, a, b)
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()
	repo := &stubEvalRepo{}
	svc := usecase.NewUploaderService(repo)
	student := domain.Student{ID: "u1", Name: "González, Juan"}
	meta := domain.ExamMetadata{Subject: " Física ", ExamTopic: " Dinámica ", ExamDate: "15/03/2026", InstructorID: "i1"}
	cost := domain.CostInfo{Cost: 0.12, Model: "claude-sonnet-4-20250514", TokensInput: 1000, TokensOutput: 500}

	rec, err := svc.Upload(context.Background(), student, meta, domain.Grading{Score: 77}, "  feedback md  ", cost)
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	assert.Regexp(t, evalIDRe, rec.ID)
	assert.Equal(t, "u1", rec.StudentID)
	assert.Equal(t, "Física", rec.Subject)
	assert.Equal(t, "Dinámica", rec.ExamTopic)
	assert.Equal(t, "2026-03-15", rec.ExamDate)
	assert.Equal(t, "feedback md", rec.Feedback)
	assert.Equal(t, "i1", rec.CreatedBy)
	assert.InDelta(t, 0.12, rec.APICost, 0.001)
	assert.Equal(t, 1000, rec.APITokensInput)
}

func TestUpload_InsertFailure(t *testing.T) {
	t.Parallel()
	repo := &stubEvalRepo{insertErr: errors.New("connection reset")}
	svc := usecase.NewUploaderService(repo)
	_, err := svc.Upload(context.Background(), domain.Student{ID: "u1"}, domain.ExamMetadata{ExamDate: "2026-03-15"}, domain.Grading{Score: 50}, "fb", domain.CostInfo{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDBInsert)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	repo := &stubEvalRepo{inserted: []domain.EvaluationRecord{{ID: "eval_abc", Score: 70}}}
	svc := usecase.NewUploaderService(repo)
	rec, err := svc.Update(context.Background(), "eval_abc", domain.Grading{Score: 82}, "nuevo feedback")
	require.NoError(t, err)
	assert.Equal(t, "eval_abc", rec.ID)
	assert.InDelta(t, 82, repo.updated["eval_abc"], 0.001)
}

func TestExists_AdvisoryOnError(t *testing.T) {
	t.Parallel()
	repo := &stubEvalRepo{exists: true, existsErr: errors.New("db down")}
	svc := usecase.NewUploaderService(repo)
	assert.False(t, svc.Exists(context.Background(), "u1", "2026-03-15", "Dinámica"))

	repo = &stubEvalRepo{exists: true}
	svc = usecase.NewUploaderService(repo)
	assert.True(t, svc.Exists(context.Background(), "u1", "2026-03-15", "Dinámica"))
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"2026-03-15", "2026-03-15"},
		{"2026/03/15", "2026-03-15"},
		{"15/03/2026", "2026-03-15"},
		{"15-03-2026", "2026-03-15"},
		{"2026-03-15T10:30:00Z", "2026-03-15"},
		{"  2026-03-15  ", "2026-03-15"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, usecase.NormalizeDate(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeDate_FallbackToToday(t *testing.T) {
	t.Parallel()
	got := usecase.NormalizeDate("no es una fecha")
	assert.Equal(t, time.Now().Format("2006-01-02"), got)
}
