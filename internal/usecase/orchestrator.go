package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// Pipeline stage labels shown to progress pollers.
const (
	stageParsing   = "Parseando archivo"
	stageMatching  = "Buscando estudiante"
	stageAnalyzing = "Analizando con IA"
	stageGrading   = "Calculando nota"
	stageAdjusting = "Aplicando ajuste contextual"
	stageFeedback  = "Generando feedback"
	stageStoring   = "Guardando en DB"
)

const unknownStudent = "Desconocido"

var pipelineTracer = otel.Tracer("github.com/fairyhunter13/ai-exam-evaluator/internal/usecase")

// EvaluationPipeline wires the full per-exam flow:
// parse → match → analyze → grade → adjust → feedback → store.
type EvaluationPipeline struct {
	Matcher  *MatcherService
	Analyzer *AnalyzerService
	Adjuster *AdjusterService
	Uploader *UploaderService
	Tracker  *BatchTracker
	Students domain.StudentRepository
	Weights  PhaseWeights
}

// NewBatchID mints a batch identifier.
func NewBatchID() string {
	return "batch_" + uuid.NewString()
}

// ProcessOne runs the whole pipeline for a single exam file. It never
// returns an error: every failure lands in the result's error field so one
// bad file cannot sink a batch.
func (p *EvaluationPipeline) ProcessOne(ctx context.Context, file domain.ExamFile, meta domain.ExamMetadata, instructorName, batchID string) domain.ProcessingResult {
	start := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.ProcessOne")
	span.SetAttributes(attribute.String("file", file.Name))
	defer span.End()

	slog.Info("processing exam file", slog.String("file", file.Name), slog.String("batch_id", batchID))

	fail := func(studentName string, err error) domain.ProcessingResult {
		slog.Error("exam processing failed",
			slog.String("file", file.Name),
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()))
		return domain.ProcessingResult{
			FileName:    file.Name,
			StudentName: studentName,
			Status:      "error",
			Duration:    time.Since(start),
			Error: &domain.ProcessingError{
				Code:    domain.ErrorCode(err),
				Message: err.Error(),
			},
		}
	}

	p.Tracker.SetStage(batchID, file.Name, stageParsing)
	exam, err := ParseExamFile(file.Name, file.Data, file.Size)
	if err != nil {
		return fail(unknownStudent, err)
	}

	p.Tracker.SetStage(batchID, file.Name, stageMatching)
	match, err := p.Matcher.Match(ctx, exam.Surname, 0, meta.MatchFilter())
	if err != nil {
		return fail(unknownStudent, err)
	}
	student := match.Student
	slog.Info("student matched",
		slog.String("file", file.Name),
		slog.String("student", student.Name),
		slog.Float64("confidence", match.Confidence))

	if meta.SkipExisting && p.Uploader.Exists(ctx, student.ID, meta.ExamDate, meta.ExamTopic) {
		slog.Info("evaluation already exists, skipping",
			slog.String("file", file.Name),
			slog.String("student", student.Name))
		return domain.ProcessingResult{
			FileName:    file.Name,
			StudentName: student.Name,
			Status:      "skipped",
			Duration:    time.Since(start),
			Error: &domain.ProcessingError{
				Code:    "ALREADY_EVALUATED",
				Message: "El estudiante ya tiene una evaluación para este examen",
			},
		}
	}

	p.Tracker.SetStage(batchID, file.Name, stageAnalyzing)
	analysis, err := p.Analyzer.Analyze(ctx, exam, student, meta)
	if err != nil {
		return fail(student.Name, err)
	}

	p.Tracker.SetStage(batchID, file.Name, stageGrading)
	if err := ValidateScores(analysis.Scores); err != nil {
		return fail(student.Name, fmt.Errorf("%w: %v", domain.ErrAIAnalysis, err))
	}
	strict := CalculateScore(analysis.Scores, p.Weights)

	p.Tracker.SetStage(batchID, file.Name, stageAdjusting)
	adjustment := p.Adjuster.Apply(ctx, strict.Score, analysis.Scores, analysis.ExerciseAnalysis, exam.RawContent)
	analysis.ContextualAdjustment = &adjustment
	final := domain.Grading{Score: adjustment.AdjustedScore}

	p.Tracker.SetStage(batchID, file.Name, stageFeedback)
	feedback := GenerateFeedback(student, meta, analysis, final, instructorName, time.Now())

	p.Tracker.SetStage(batchID, file.Name, stageStoring)
	totalCost := analysis.CostInfo.Add(adjustment.CostInfo)
	rec, err := p.Uploader.Upload(ctx, student, meta, final, feedback, totalCost)
	if err != nil {
		return fail(student.Name, err)
	}

	duration := time.Since(start)
	slog.Info("exam processed",
		slog.String("file", file.Name),
		slog.String("evaluation_id", rec.ID),
		slog.Float64("score", final.Score),
		slog.Duration("duration", duration))

	return domain.ProcessingResult{
		FileName:     file.Name,
		StudentName:  student.Name,
		EvaluationID: rec.ID,
		Score:        final.Score,
		Status:       "success",
		Duration:     duration,
	}
}

// ProcessBatch runs the pipeline over every file, strictly sequentially.
// Cancellation is honored between files: the batch is marked failed and the
// remaining files get cancellation error results.
func (p *EvaluationPipeline) ProcessBatch(ctx context.Context, batchID string, files []domain.ExamFile, meta domain.ExamMetadata, instructorName string) ([]domain.ProcessingResult, domain.BatchSummary) {
	start := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.ProcessBatch")
	span.SetAttributes(attribute.String("batch_id", batchID), attribute.Int("files", len(files)))
	defer span.End()

	slog.Info("starting batch",
		slog.String("batch_id", batchID),
		slog.Int("files", len(files)),
		slog.String("subject", meta.Subject),
		slog.String("topic", meta.ExamTopic))

	p.Tracker.InitBatch(batchID, len(files))

	results := make([]domain.ProcessingResult, 0, len(files))
	cancelled := false
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			cancelled = true
			for _, rest := range files[i:] {
				results = append(results, domain.ProcessingResult{
					FileName:    rest.Name,
					StudentName: unknownStudent,
					Status:      "error",
					Error: &domain.ProcessingError{
						Code:    "UNKNOWN_ERROR",
						Message: "procesamiento cancelado",
						Details: err.Error(),
					},
				})
			}
			break
		}

		result := p.ProcessOne(ctx, file, meta, instructorName, batchID)
		results = append(results, result)
		p.Tracker.MarkFileProcessed(batchID, fileResult(result))
	}

	if cancelled {
		p.Tracker.MarkBatchFailed(batchID, "procesamiento cancelado")
	}

	summary := summarize(results, time.Since(start))
	slog.Info("batch finished",
		slog.String("batch_id", batchID),
		slog.Int("total", summary.Total),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Float64("avg_score", summary.AvgScore),
		slog.Duration("duration", summary.TotalDuration))
	return results, summary
}

// InstructorName resolves the instructor's display name, defaulting to
// "Instructor" so feedback generation never blocks on a lookup failure.
func (p *EvaluationPipeline) InstructorName(ctx context.Context, instructorID string) string {
	name, err := p.Students.InstructorName(ctx, instructorID)
	if err != nil || name == "" {
		if err != nil {
			slog.Warn("instructor lookup failed", slog.String("instructor_id", instructorID), slog.String("error", err.Error()))
		}
		return "Instructor"
	}
	return name
}

// Evaluation returns a stored evaluation by id.
func (p *EvaluationPipeline) Evaluation(ctx context.Context, id string) (domain.EvaluationRecord, error) {
	rec, err := p.Uploader.Evaluations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EvaluationRecord{}, err
		}
		return domain.EvaluationRecord{}, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	return rec, nil
}

func fileResult(r domain.ProcessingResult) domain.FileResult {
	fr := domain.FileResult{
		FileName:    r.FileName,
		Status:      r.Status,
		StudentName: r.StudentName,
	}
	if r.Status == "success" {
		score := r.Score
		fr.Score = &score
	} else if r.Error != nil {
		fr.Error = r.Error.Message
	}
	return fr
}

func summarize(results []domain.ProcessingResult, totalDuration time.Duration) domain.BatchSummary {
	var successful, failed int
	var scoreSum float64
	for _, r := range results {
		switch r.Status {
		case "success":
			successful++
			scoreSum += r.Score
		case "skipped":
		default:
			failed++
		}
	}
	avg := 0.0
	if successful > 0 {
		avg = math.Round(scoreSum / float64(successful))
	}
	return domain.BatchSummary{
		Total:         len(results),
		Successful:    successful,
		Failed:        failed,
		AvgScore:      avg,
		TotalDuration: totalDuration,
	}
}
