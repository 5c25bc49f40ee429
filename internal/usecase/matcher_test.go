package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

type stubStudentRepo struct {
	students   []domain.Student
	byID       map[string]domain.Student
	instructor string
	lastFilter *domain.MatchContext
	err        error
}

func (r *stubStudentRepo) ActiveStudents(_ context.Context, filter *domain.MatchContext) ([]domain.Student, error) {
	r.lastFilter = filter
	if r.err != nil {
		return nil, r.err
	}
	return r.students, nil
}

func (r *stubStudentRepo) StudentByID(_ context.Context, id string) (domain.Student, error) {
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return domain.Student{}, domain.ErrNotFound
}

func (r *stubStudentRepo) InstructorName(_ context.Context, _ string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.instructor, nil
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "gonzalez", usecase.NormalizeName("González"))
	assert.Equal(t, "di bernardo", usecase.NormalizeName("  Di Bernardo  "))
	assert.Equal(t, "nunez", usecase.NormalizeName("Núñez!"))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 100, usecase.Similarity("González", "gonzalez"), 0.001)
	assert.InDelta(t, 0, usecase.Similarity("", ""), 0.001)
	assert.Greater(t, usecase.Similarity("Rosiello", "Rosielo"), 85.0)
	assert.Less(t, usecase.Similarity("Rosiello", "Fernandez"), 50.0)
}

func TestMatch_CommaForm(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{students: []domain.Student{
		{ID: "u1", Name: "González, Juan"},
		{ID: "u2", Name: "Fernández, Lucía"},
	}}
	m := usecase.NewMatcherService(repo, 0)
	got, err := m.Match(context.Background(), "Gonzalez", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Student.ID)
	assert.InDelta(t, 100, got.Confidence, 0.001)
}

func TestMatch_FreeOrderName(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{students: []domain.Student{
		{ID: "u1", Name: "Ana Di Bernardo"},
		{ID: "u2", Name: "Juan Pérez"},
	}}
	m := usecase.NewMatcherService(repo, 0)
	got, err := m.Match(context.Background(), "Di Bernardo", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Student.ID)
}

func TestMatch_BelowThreshold(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{students: []domain.Student{{ID: "u1", Name: "Fernández, Lucía"}}}
	m := usecase.NewMatcherService(repo, 90)
	_, err := m.Match(context.Background(), "Rosiello", 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)
	assert.Contains(t, err.Error(), "Mejor match:")
	assert.Contains(t, err.Error(), "Fernández, Lucía")
}

func TestMatch_EmptyPool(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{}
	m := usecase.NewMatcherService(repo, 0)
	_, err := m.Match(context.Background(), "Gonzalez", 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)
}

func TestMatch_RepoError(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{err: errors.New("db down")}
	m := usecase.NewMatcherService(repo, 0)
	_, err := m.Match(context.Background(), "Gonzalez", 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)
}

func TestMatch_BiofisicaSkipsSubjectFilter(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{students: []domain.Student{{ID: "u1", Name: "González, Juan"}}}
	m := usecase.NewMatcherService(repo, 0)
	filter := &domain.MatchContext{Subject: "Biofísica", Sede: "Centro"}
	_, err := m.Match(context.Background(), "Gonzalez", 0, filter)
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter)
	assert.Empty(t, repo.lastFilter.Subject)
	assert.Equal(t, "Centro", repo.lastFilter.Sede)
	// caller's filter untouched
	assert.Equal(t, "Biofísica", filter.Subject)
}

func TestMatch_ExplicitThresholdOverride(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{students: []domain.Student{{ID: "u1", Name: "Rosielo, Ana"}}}
	m := usecase.NewMatcherService(repo, 99)
	got, err := m.Match(context.Background(), "Rosiello", 80, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Student.ID)
}

func TestValidateStudent(t *testing.T) {
	t.Parallel()
	repo := &stubStudentRepo{byID: map[string]domain.Student{"u1": {ID: "u1", Name: "González, Juan"}}}
	m := usecase.NewMatcherService(repo, 0)

	got, err := m.ValidateStudent(context.Background(), "u1")
	require.NoError(t, err)
	assert.InDelta(t, 100, got.Confidence, 0.001)

	_, err = m.ValidateStudent(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)
}
