package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// UploaderService persists finished evaluations through the repository port.
type UploaderService struct {
	Evaluations domain.EvaluationRepository
}

// NewUploaderService builds an uploader over the given repository.
func NewUploaderService(repo domain.EvaluationRepository) *UploaderService {
	return &UploaderService{Evaluations: repo}
}

// GenerateEvaluationID derives a unique evaluation id from the student,
// exam identity and the current time: "eval_" plus the first 16 hex chars of
// a sha256 digest. Anti-collision, not idempotent: two runs over the same
// exam produce different ids.
func GenerateEvaluationID(studentID, examDate, examTopic string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sum := sha256.Sum256([]byte(studentID + examDate + examTopic + ts))
	return "eval_" + hex.EncodeToString(sum[:])[:16]
}

// Upload stores one evaluation record and returns it. Store failures wrap
// ErrDBInsert.
func (u *UploaderService) Upload(ctx context.Context, student domain.Student, meta domain.ExamMetadata, grading domain.Grading, feedbackMarkdown string, cost domain.CostInfo) (domain.EvaluationRecord, error) {
	now := time.Now().UTC()
	rec := domain.EvaluationRecord{
		ID:              GenerateEvaluationID(student.ID, meta.ExamDate, meta.ExamTopic),
		StudentID:       student.ID,
		Subject:         strings.TrimSpace(meta.Subject),
		ExamDate:        NormalizeDate(meta.ExamDate),
		ExamTopic:       strings.TrimSpace(meta.ExamTopic),
		Score:           grading.Score,
		Feedback:        strings.TrimSpace(feedbackMarkdown),
		CreatedBy:       meta.InstructorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		APICost:         cost.Cost,
		APIModel:        cost.Model,
		APITokensInput:  cost.TokensInput,
		APITokensOutput: cost.TokensOutput,
	}

	if err := u.Evaluations.Insert(ctx, rec); err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: no se pudo guardar la evaluación en la base de datos: %v", domain.ErrDBInsert, err)
	}

	slog.Info("evaluation stored",
		slog.String("evaluation_id", rec.ID),
		slog.String("student_id", rec.StudentID),
		slog.String("subject", rec.Subject),
		slog.String("exam_topic", rec.ExamTopic),
		slog.Float64("score", rec.Score))
	return rec, nil
}

// Update replaces the score and feedback of an existing evaluation.
func (u *UploaderService) Update(ctx context.Context, evaluationID string, grading domain.Grading, feedbackMarkdown string) (domain.EvaluationRecord, error) {
	now := time.Now().UTC()
	if err := u.Evaluations.UpdateScoreFeedback(ctx, evaluationID, grading.Score, strings.TrimSpace(feedbackMarkdown), now); err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: no se pudo actualizar la evaluación %s: %v", domain.ErrDBInsert, evaluationID, err)
	}
	rec, err := u.Evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: evaluación no encontrada: %s", domain.ErrDBInsert, evaluationID)
	}
	slog.Info("evaluation updated", slog.String("evaluation_id", evaluationID), slog.Float64("score", grading.Score))
	return rec, nil
}

// Exists reports whether an evaluation for this student, date and topic is
// already stored. Advisory only: lookup failures read as "not found" so a
// degraded check never blocks an upload.
func (u *UploaderService) Exists(ctx context.Context, studentID, examDate, examTopic string) bool {
	ok, err := u.Evaluations.Exists(ctx, studentID, NormalizeDate(examDate), strings.TrimSpace(examTopic))
	if err != nil {
		slog.Warn("evaluation existence check failed", slog.String("error", err.Error()))
		return false
	}
	return ok
}

// StudentEvaluations lists a student's stored evaluations, newest exam first.
func (u *UploaderService) StudentEvaluations(ctx context.Context, studentID string, limit int) ([]domain.EvaluationRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	recs, err := u.Evaluations.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: no se pudieron obtener las evaluaciones del estudiante: %v", domain.ErrInternal, err)
	}
	return recs, nil
}

// Stats aggregates a student's evaluations for one subject.
func (u *UploaderService) Stats(ctx context.Context, studentID, subject string) (domain.EvaluationStats, error) {
	stats, err := u.Evaluations.StatsBySubject(ctx, studentID, subject)
	if err != nil {
		return domain.EvaluationStats{}, fmt.Errorf("%w: no se pudieron obtener las estadísticas: %v", domain.ErrInternal, err)
	}
	return stats, nil
}

// Accepted exam-date layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// NormalizeDate coerces an exam date to YYYY-MM-DD. Unparseable input falls
// back to today's date with a warning, matching the permissive intake the
// upload flow needs.
func NormalizeDate(date string) string {
	trimmed := strings.TrimSpace(date)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	slog.Warn("invalid exam date, falling back to today", slog.String("date", date))
	return time.Now().Format("2006-01-02")
}
