package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Pipeline *usecase.EvaluationPipeline
	Uploader *usecase.UploaderService
	Tracker  *usecase.BatchTracker
	DBCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, pipeline *usecase.EvaluationPipeline, uploader *usecase.UploaderService, tracker *usecase.BatchTracker, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Pipeline: pipeline, Uploader: uploader, Tracker: tracker, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// EvaluateBatchHandler accepts a multipart batch of exam files plus metadata,
// starts processing in the background, and responds 202 with the batch id.
func (s *Server) EvaluateBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		meta := domain.ExamMetadata{
			Subject:      strings.TrimSpace(r.FormValue("subject")),
			ExamTopic:    strings.TrimSpace(r.FormValue("exam_topic")),
			ExamDate:     strings.TrimSpace(r.FormValue("exam_date")),
			InstructorID: strings.TrimSpace(r.FormValue("instructor_id")),
			Division:     strings.TrimSpace(r.FormValue("division")),
			AcademicYear: strings.TrimSpace(r.FormValue("academic_year")),
			Sede:         strings.TrimSpace(r.FormValue("sede")),
			SkipExisting: r.FormValue("skip_existing") == "true",
		}
		if err := getValidator().Struct(meta); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: faltan campos de metadata requeridos", domain.ErrInvalidMetadata), verrs)
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			writeError(w, r, fmt.Errorf("%w: files field required", domain.ErrInvalidArgument), map[string]string{"field": "files"})
			return
		}
		if len(headers) > s.Cfg.MaxBatchFiles {
			writeError(w, r, fmt.Errorf("%w: too many files", domain.ErrInvalidArgument),
				map[string]any{"max_files": s.Cfg.MaxBatchFiles, "got": len(headers)})
			return
		}

		files := make([]domain.ExamFile, 0, len(headers))
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, h.Filename, err), nil)
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, h.Filename, err), nil)
				return
			}
			files = append(files, domain.ExamFile{Name: h.Filename, Data: data, Size: h.Size})
		}

		batchID := usecase.NewBatchID()
		// Detached from the request lifetime; the trace link survives.
		bgCtx := context.WithoutCancel(r.Context())
		go func() {
			instructorName := s.Pipeline.InstructorName(bgCtx, meta.InstructorID)
			s.Pipeline.ProcessBatch(bgCtx, batchID, files, meta, instructorName)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"batch_id":    batchID,
			"status":      string(domain.BatchProcessing),
			"total_files": len(files),
		})
	}
}

// BatchProgressHandler returns the pollable snapshot of one batch.
func (s *Server) BatchProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID := chi.URLParam(r, "batchID")
		progress, ok := s.Tracker.Progress(batchID)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID), nil)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	}
}

// EvaluationHandler returns one stored evaluation.
func (s *Server) EvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := s.Pipeline.Evaluation(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, evaluationEnvelope(rec))
	}
}

// UpdateEvaluationHandler rewrites an evaluation's score and feedback.
func (s *Server) UpdateEvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Score    *float64 `json:"score" validate:"required"`
			Feedback string   `json:"feedback" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: score and feedback required", domain.ErrInvalidArgument), nil)
			return
		}
		if *req.Score < 0 || *req.Score > 100 {
			writeError(w, r, fmt.Errorf("%w: score must be in [0,100]", domain.ErrInvalidArgument),
				map[string]any{"score": *req.Score})
			return
		}
		rec, err := s.Uploader.Update(r.Context(), id, domain.Grading{Score: *req.Score}, req.Feedback)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, evaluationEnvelope(rec))
	}
}

// StudentEvaluationsHandler lists a student's evaluations and per-subject
// stats when a subject query param is present.
func (s *Server) StudentEvaluationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := chi.URLParam(r, "studentID")
		recs, err := s.Uploader.StudentEvaluations(r.Context(), studentID, 10)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := map[string]any{"evaluations": evaluationEnvelopes(recs)}
		if subject := r.URL.Query().Get("subject"); subject != "" {
			stats, err := s.Uploader.Stats(r.Context(), studentID, subject)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			out["stats"] = map[string]any{
				"average":        stats.Average,
				"total":          stats.Total,
				"last_exam_date": stats.LastExamDate,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ReadyzHandler probes the database.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		ok := true
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

func evaluationEnvelope(rec domain.EvaluationRecord) map[string]any {
	return map[string]any{
		"id":                rec.ID,
		"student_id":        rec.StudentID,
		"subject":           rec.Subject,
		"exam_date":         rec.ExamDate,
		"exam_topic":        rec.ExamTopic,
		"score":             rec.Score,
		"feedback":          rec.Feedback,
		"created_by":        rec.CreatedBy,
		"created_at":        rec.CreatedAt,
		"updated_at":        rec.UpdatedAt,
		"api_cost":          rec.APICost,
		"api_model":         rec.APIModel,
		"api_tokens_input":  rec.APITokensInput,
		"api_tokens_output": rec.APITokensOutput,
	}
}

func evaluationEnvelopes(recs []domain.EvaluationRecord) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, evaluationEnvelope(rec))
	}
	return out
}
