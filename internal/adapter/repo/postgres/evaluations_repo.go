package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// EvaluationRepo persists evaluation records.
type EvaluationRepo struct{ pool PgxPool }

// NewEvaluationRepo builds an EvaluationRepo.
func NewEvaluationRepo(pool PgxPool) *EvaluationRepo { return &EvaluationRepo{pool: pool} }

const evaluationColumns = `id, student_id, subject, exam_date, exam_topic, score, feedback, created_by, created_at, updated_at, api_cost, api_model, api_tokens_input, api_tokens_output`

func scanEvaluation(row pgx.Row) (domain.EvaluationRecord, error) {
	var rec domain.EvaluationRecord
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.Subject, &rec.ExamDate, &rec.ExamTopic,
		&rec.Score, &rec.Feedback, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.APICost, &rec.APIModel, &rec.APITokensInput, &rec.APITokensOutput)
	return rec, err
}

// Insert stores a new evaluation row.
func (r *EvaluationRepo) Insert(ctx context.Context, rec domain.EvaluationRecord) error {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "Insert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.ID, rec.StudentID, rec.Subject, rec.ExamDate, rec.ExamTopic,
		rec.Score, rec.Feedback, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt,
		rec.APICost, rec.APIModel, rec.APITokensInput, rec.APITokensOutput)
	if err != nil {
		return fmt.Errorf("op=evaluations.insert: %w", err)
	}
	return nil
}

// GetByID fetches one evaluation.
func (r *EvaluationRepo) GetByID(ctx context.Context, id string) (domain.EvaluationRecord, error) {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "GetByID")
	defer span.End()

	rec, err := scanEvaluation(r.pool.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: evaluation %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("op=evaluations.get: %w", err)
	}
	return rec, nil
}

// UpdateScoreFeedback rewrites the mutable fields of an evaluation.
func (r *EvaluationRepo) UpdateScoreFeedback(ctx context.Context, id string, score float64, feedback string, updatedAt time.Time) error {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "UpdateScoreFeedback")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE evaluations SET score = $2, feedback = $3, updated_at = $4 WHERE id = $1`,
		id, score, feedback, updatedAt)
	if err != nil {
		return fmt.Errorf("op=evaluations.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: evaluation %s", domain.ErrNotFound, id)
	}
	return nil
}

// Exists reports whether the student already has an evaluation for the same
// exam date and topic.
func (r *EvaluationRepo) Exists(ctx context.Context, studentID, examDate, examTopic string) (bool, error) {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "Exists")
	defer span.End()

	var found bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM evaluations WHERE student_id = $1 AND exam_date = $2 AND exam_topic = $3)`,
		studentID, examDate, examTopic).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("op=evaluations.exists: %w", err)
	}
	return found, nil
}

// ListByStudent returns the student's most recent evaluations.
func (r *EvaluationRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.EvaluationRecord, error) {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "ListByStudent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE student_id = $1 ORDER BY exam_date DESC LIMIT $2`,
		studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=evaluations.list: %w", err)
	}
	defer rows.Close()

	var recs []domain.EvaluationRecord
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("op=evaluations.list scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluations.list rows: %w", err)
	}
	return recs, nil
}

// StatsBySubject aggregates a student's evaluations for one subject.
func (r *EvaluationRepo) StatsBySubject(ctx context.Context, studentID, subject string) (domain.EvaluationStats, error) {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "StatsBySubject")
	defer span.End()

	var stats domain.EvaluationStats
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(ROUND(AVG(score))::float8, 0), COUNT(*), COALESCE(MAX(exam_date), '')
		 FROM evaluations WHERE student_id = $1 AND subject = $2`,
		studentID, subject).Scan(&stats.Average, &stats.Total, &stats.LastExamDate)
	if err != nil {
		return domain.EvaluationStats{}, fmt.Errorf("op=evaluations.stats: %w", err)
	}
	return stats, nil
}
