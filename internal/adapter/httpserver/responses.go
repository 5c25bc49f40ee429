// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST surface of the evaluator: batch submission, batch
// progress polling, and evaluation retrieval and correction. The package
// keeps HTTP concerns apart from the pipeline itself.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidMetadata):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrParse):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStudentNotFound), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAIAnalysis):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, domain.ErrUpstreamRateLimit):
		status = http.StatusServiceUnavailable
	}
	code := domain.ErrorCode(err)
	if code == "UNKNOWN_ERROR" {
		code = "INTERNAL"
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: err.Error(), Details: details}})
}
