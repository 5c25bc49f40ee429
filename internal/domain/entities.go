// Package domain defines the entities, error taxonomy, and ports of the
// exam-evaluation pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrInvalidFormat     = errors.New("invalid file format")
	ErrParse             = errors.New("parse error")
	ErrStudentNotFound   = errors.New("student not found")
	ErrAIAnalysis        = errors.New("ai analysis failed")
	ErrDBInsert          = errors.New("db insert failed")
	ErrInvalidMetadata   = errors.New("invalid metadata")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrInternal          = errors.New("internal error")
)

// ErrorCode maps a pipeline error to its stable machine-readable code, used
// in per-file processing results and HTTP error envelopes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return "INVALID_FILE_FORMAT"
	case errors.Is(err, ErrParse):
		return "PARSE_ERROR"
	case errors.Is(err, ErrStudentNotFound):
		return "STUDENT_NOT_FOUND"
	case errors.Is(err, ErrAIAnalysis):
		return "AI_ANALYSIS_FAILED"
	case errors.Is(err, ErrDBInsert):
		return "DB_INSERT_FAILED"
	case errors.Is(err, ErrInvalidMetadata):
		return "INVALID_METADATA"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Exercise is one numbered exercise extracted from an exam document.
// Invariant: a ParsedExam's exercises are sorted ascending by Number.
type Exercise struct {
	Number    int
	Title     string
	Content   string
	HasAnswer bool
}

// ParseMetadata records provenance for a parsed document.
type ParseMetadata struct {
	FileName string
	FileSize int64
	ParsedAt time.Time
}

// ParsedExam is the document model produced by the parser. Ephemeral; it
// lives for the duration of one file's processing.
type ParsedExam struct {
	Surname    string
	RawContent string
	Exercises  []Exercise
	Metadata   ParseMetadata
}

// Student is a read-only projection of an externally owned user record.
type Student struct {
	ID           string
	Name         string
	AcademicYear string
	Division     string
}

// MatchResult pairs a resolved student with the fuzzy-match confidence that
// selected them. Confidence is a percentage in [0,100].
type MatchResult struct {
	Student    Student
	Confidence float64
}

// MatchContext narrows the candidate pool when resolving a surname.
type MatchContext struct {
	Subject      string
	Division     string
	AcademicYear string
	Sede         string
}

// PhaseID identifies one of the five rubric phases.
type PhaseID string

// The fixed rubric phases, in canonical order.
const (
	PhaseF1 PhaseID = "F1" // Comprensión del Problema
	PhaseF2 PhaseID = "F2" // Identificación de Variables
	PhaseF3 PhaseID = "F3" // Selección de Herramientas
	PhaseF4 PhaseID = "F4" // Ejecución y Cálculos
	PhaseF5 PhaseID = "F5" // Verificación y Análisis
)

// PhaseOrder is the canonical F1..F5 iteration order; statistics and
// action-plan tie-breaks depend on it.
var PhaseOrder = [5]PhaseID{PhaseF1, PhaseF2, PhaseF3, PhaseF4, PhaseF5}

// PhaseName returns the human-readable Spanish name of a phase.
func PhaseName(id PhaseID) string {
	switch id {
	case PhaseF1:
		return "Comprensión del Problema"
	case PhaseF2:
		return "Identificación de Variables"
	case PhaseF3:
		return "Selección de Herramientas"
	case PhaseF4:
		return "Ejecución y Cálculos"
	case PhaseF5:
		return "Verificación y Análisis"
	}
	return "General"
}

// PhaseScore is one phase's rubric outcome.
// Invariants: Level in {1,2,3,4}; Score in [0,100].
type PhaseScore struct {
	Level int     `json:"nivel"`
	Score float64 `json:"puntaje"`
}

// PhaseScores holds exactly the five named phases.
type PhaseScores struct {
	F1 PhaseScore `json:"F1"`
	F2 PhaseScore `json:"F2"`
	F3 PhaseScore `json:"F3"`
	F4 PhaseScore `json:"F4"`
	F5 PhaseScore `json:"F5"`
}

// Phase returns the score of the given phase.
func (p PhaseScores) Phase(id PhaseID) PhaseScore {
	switch id {
	case PhaseF1:
		return p.F1
	case PhaseF2:
		return p.F2
	case PhaseF3:
		return p.F3
	case PhaseF4:
		return p.F4
	case PhaseF5:
		return p.F5
	}
	return PhaseScore{}
}

// PhaseComment is a per-exercise, per-phase evaluation note.
type PhaseComment struct {
	Level   int    `json:"nivel"`
	Comment string `json:"comment"`
}

// PhaseEvaluations holds per-phase commentary for a single exercise.
type PhaseEvaluations struct {
	F1 PhaseComment `json:"F1"`
	F2 PhaseComment `json:"F2"`
	F3 PhaseComment `json:"F3"`
	F4 PhaseComment `json:"F4"`
	F5 PhaseComment `json:"F5"`
}

// Phase returns the comment for the given phase.
func (p PhaseEvaluations) Phase(id PhaseID) PhaseComment {
	switch id {
	case PhaseF1:
		return p.F1
	case PhaseF2:
		return p.F2
	case PhaseF3:
		return p.F3
	case PhaseF4:
		return p.F4
	case PhaseF5:
		return p.F5
	}
	return PhaseComment{}
}

// ExerciseAnalysis is the reasoning service's verdict on one exercise.
type ExerciseAnalysis struct {
	ExerciseNumber   int              `json:"exerciseNumber"`
	Strengths        []string         `json:"strengths"`
	Weaknesses       []string         `json:"weaknesses"`
	SpecificFeedback string           `json:"specificFeedback"`
	PhaseEvaluations PhaseEvaluations `json:"phaseEvaluations"`
}

// Recommendation is a prioritized improvement suggestion.
// Priority is one of "alta", "media", "baja".
type Recommendation struct {
	Priority           string   `json:"priority"`
	Title              string   `json:"title"`
	Reason             string   `json:"reason"`
	Steps              []string `json:"steps"`
	SuggestedResources string   `json:"suggestedResources,omitempty"`
}

// CostInfo is the accounting for one reasoning-service call.
type CostInfo struct {
	Cost         float64
	Model        string
	TokensInput  int
	TokensOutput int
	CacheHit     bool
}

// Add returns the combined cost of two calls, keeping the first model id.
func (c CostInfo) Add(o CostInfo) CostInfo {
	model := c.Model
	if model == "" {
		model = o.Model
	}
	return CostInfo{
		Cost:         c.Cost + o.Cost,
		Model:        model,
		TokensInput:  c.TokensInput + o.TokensInput,
		TokensOutput: c.TokensOutput + o.TokensOutput,
		CacheHit:     c.CacheHit || o.CacheHit,
	}
}

// ContextualAdjustment is the bounded pedagogical correction applied on top
// of the strict rubric score.
// Invariant: AdjustedScore == clamp(OriginalScore+Adjustment, 0, 100) and
// |Adjustment| never exceeds the tier bound for OriginalScore.
type ContextualAdjustment struct {
	OriginalScore float64
	AdjustedScore float64
	Adjustment    float64
	Justification string
	Evidence      string
	AppliedAt     time.Time
	CostInfo      CostInfo
}

// Applied reports whether the adjustment actually changed the score.
func (a *ContextualAdjustment) Applied() bool {
	return a != nil && a.Adjustment != 0
}

// RubricAnalysis is the validated, normalized result of the analyzer.
type RubricAnalysis struct {
	Scores               PhaseScores
	ExerciseAnalysis     []ExerciseAnalysis
	Recommendations      []Recommendation
	CostInfo             CostInfo
	ContextualAdjustment *ContextualAdjustment
}

// Grading carries a score in [0,100]; produced twice per run (strict, final).
type Grading struct {
	Score float64
}

// ExamMetadata is the caller-supplied context for one exam batch.
type ExamMetadata struct {
	Subject      string `validate:"required"`
	ExamTopic    string `validate:"required"`
	ExamDate     string `validate:"required"`
	InstructorID string `validate:"required"`
	Division     string
	AcademicYear string
	Sede         string
	// SkipExisting skips files whose student already has an evaluation for
	// this exam date and topic.
	SkipExisting bool
}

// MatchFilter derives the candidate-pool filter from the metadata.
func (m ExamMetadata) MatchFilter() *MatchContext {
	if m.Division == "" && m.AcademicYear == "" && m.Sede == "" && m.Subject == "" {
		return nil
	}
	return &MatchContext{
		Subject:      m.Subject,
		Division:     m.Division,
		AcademicYear: m.AcademicYear,
		Sede:         m.Sede,
	}
}

// EvaluationRecord is the durable, externally consumed evaluation row.
// Immutable once created except through UpdateScoreFeedback.
type EvaluationRecord struct {
	ID              string
	StudentID       string
	Subject         string
	ExamDate        string
	ExamTopic       string
	Score           float64
	Feedback        string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	APICost         float64
	APIModel        string
	APITokensInput  int
	APITokensOutput int
}

// EvaluationStats summarizes a student's evaluations for one subject.
type EvaluationStats struct {
	Average      float64
	Total        int
	LastExamDate string
}

// ProcessingError is the machine-readable failure detail of one file.
type ProcessingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ProcessingResult is the per-file outcome of the pipeline; ProcessOne
// always returns one, never an error.
type ProcessingResult struct {
	FileName     string           `json:"fileName"`
	StudentName  string           `json:"studentName"`
	EvaluationID string           `json:"evaluationId"`
	Score        float64          `json:"score"`
	Status       string           `json:"status"` // "success" | "skipped" | "error"
	Duration     time.Duration    `json:"duration"`
	Error        *ProcessingError `json:"error,omitempty"`
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

// Batch states: processing transitions to completed or failed.
const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// FileResult is the tracker's per-file progress entry.
type FileResult struct {
	FileName    string   `json:"fileName"`
	Status      string   `json:"status"`
	StudentName string   `json:"studentName,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// BatchProgress is the pollable snapshot of one batch run.
type BatchProgress struct {
	BatchID        string       `json:"batchId"`
	TotalFiles     int          `json:"totalFiles"`
	ProcessedFiles int          `json:"processedFiles"`
	CurrentFile    string       `json:"currentFile,omitempty"`
	CurrentPhase   string       `json:"currentPhase,omitempty"`
	Status         BatchStatus  `json:"status"`
	Results        []FileResult `json:"results"`
	StartTime      time.Time    `json:"startTime"`
	EndTime        *time.Time   `json:"endTime,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// BatchSummary aggregates a finished batch.
type BatchSummary struct {
	Total         int           `json:"total"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	AvgScore      float64       `json:"avgScore"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// ExamFile is one uploaded document.
type ExamFile struct {
	Name string
	Data []byte
	Size int64
}

// Repositories (ports)

// StudentRepository exposes the read-only student lookups the pipeline needs.
type StudentRepository interface {
	ActiveStudents(ctx context.Context, filter *MatchContext) ([]Student, error)
	StudentByID(ctx context.Context, id string) (Student, error)
	InstructorName(ctx context.Context, id string) (string, error)
}

// EvaluationRepository persists evaluation records.
type EvaluationRepository interface {
	Insert(ctx context.Context, rec EvaluationRecord) error
	GetByID(ctx context.Context, id string) (EvaluationRecord, error)
	UpdateScoreFeedback(ctx context.Context, id string, score float64, feedback string, updatedAt time.Time) error
	Exists(ctx context.Context, studentID, examDate, examTopic string) (bool, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]EvaluationRecord, error)
	StatsBySubject(ctx context.Context, studentID, subject string) (EvaluationStats, error)
}

// AIClient (port)

// SendOptions tunes one reasoning-service call.
type SendOptions struct {
	MaxTokens   int
	Temperature float64
	// CacheSystem marks the system block as provider-cacheable. This is an
	// optimization hint, not a correctness requirement.
	CacheSystem bool
}

// Usage is the token accounting returned by the reasoning service.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

// Completion is one reasoning-service response.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// AIClient is the single narrow capability both the analyzer and the
// adjuster depend on; test doubles inject deterministic fixtures here.
type AIClient interface {
	Send(ctx context.Context, system, user string, opts SendOptions) (Completion, error)
}

// ProgressSink receives progress events emitted by the orchestrator.
// Logging is one subscriber; UI polling via the tracker is another.
type ProgressSink interface {
	OnStage(batchID, fileName, phase string)
	OnFileDone(batchID string, result FileResult)
	OnBatchDone(batchID string, status BatchStatus)
}
