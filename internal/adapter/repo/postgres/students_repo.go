package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// StudentRepo reads the externally owned users table. It never writes.
type StudentRepo struct{ pool PgxPool }

// NewStudentRepo builds a StudentRepo.
func NewStudentRepo(pool PgxPool) *StudentRepo { return &StudentRepo{pool: pool} }

// ActiveStudents returns active students, optionally narrowed by division,
// academic year, sede, and subject enrollment.
func (r *StudentRepo) ActiveStudents(ctx context.Context, filter *domain.MatchContext) ([]domain.Student, error) {
	ctx, span := otel.Tracer("repo.students").Start(ctx, "ActiveStudents")
	defer span.End()

	var sb strings.Builder
	sb.WriteString(`SELECT id, name, COALESCE(academic_year,''), COALESCE(division,'') FROM users WHERE role = 'STUDENT' AND status = 'ACTIVE'`)
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}
	if filter != nil {
		if filter.Division != "" {
			add("division = $%d", filter.Division)
		}
		if filter.AcademicYear != "" {
			add("academic_year = $%d", filter.AcademicYear)
		}
		if filter.Sede != "" {
			add("sede = $%d", filter.Sede)
		}
		if filter.Subject != "" {
			add("subjects LIKE $%d", "%"+filter.Subject+"%")
		}
	}
	sb.WriteString(" ORDER BY name")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("op=students.active: %w", err)
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		var s domain.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.AcademicYear, &s.Division); err != nil {
			return nil, fmt.Errorf("op=students.active scan: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=students.active rows: %w", err)
	}
	return students, nil
}

// StudentByID fetches one active student.
func (r *StudentRepo) StudentByID(ctx context.Context, id string) (domain.Student, error) {
	ctx, span := otel.Tracer("repo.students").Start(ctx, "StudentByID")
	defer span.End()

	var s domain.Student
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(academic_year,''), COALESCE(division,'') FROM users WHERE id = $1 AND role = 'STUDENT' AND status = 'ACTIVE'`,
		id).Scan(&s.ID, &s.Name, &s.AcademicYear, &s.Division)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Student{}, fmt.Errorf("%w: student %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Student{}, fmt.Errorf("op=students.by_id: %w", err)
	}
	return s, nil
}

// InstructorName returns an instructor's display name.
func (r *StudentRepo) InstructorName(ctx context.Context, id string) (string, error) {
	ctx, span := otel.Tracer("repo.students").Start(ctx, "InstructorName")
	defer span.End()

	var name string
	err := r.pool.QueryRow(ctx,
		`SELECT name FROM users WHERE id = $1 AND role = 'INSTRUCTOR'`,
		id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: instructor %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("op=students.instructor_name: %w", err)
	}
	return name, nil
}
