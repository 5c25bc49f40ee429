package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

const (
	analysisMaxTokens   = 8000
	analysisTemperature = 0.1
)

// CalculateCost prices one reasoning-service call from its usage figures.
func CalculateCost(p config.AIPricing, u domain.Usage) float64 {
	return p.Cost(u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
}

// AnalyzerService grades a parsed exam against the 5-phase rubric via the
// reasoning service and validates the structured response. An empty Rubric
// keeps the built-in rubric text.
type AnalyzerService struct {
	AI      domain.AIClient
	Rubric  string
	Pricing config.AIPricing
}

// NewAnalyzerService builds an analyzer over the given client.
func NewAnalyzerService(ai domain.AIClient, rubric string, pricing config.AIPricing) *AnalyzerService {
	return &AnalyzerService{AI: ai, Rubric: rubric, Pricing: pricing}
}

// Analyze runs one rubric analysis call and returns the validated result.
// Transport errors, empty responses, and structurally invalid JSON all map
// to ErrAIAnalysis.
func (a *AnalyzerService) Analyze(ctx context.Context, exam domain.ParsedExam, student domain.Student, meta domain.ExamMetadata) (domain.RubricAnalysis, error) {
	system := AnalysisSystemPrompt(a.Rubric)
	user := AnalysisUserPrompt(exam, student, meta)

	slog.Info("analyzing exam",
		slog.String("student", student.Name),
		slog.String("subject", meta.Subject),
		slog.String("topic", meta.ExamTopic),
		slog.Int("exercises", len(exam.Exercises)))

	completion, err := a.AI.Send(ctx, system, user, domain.SendOptions{
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
		CacheSystem: true,
	})
	if err != nil {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: error al analizar examen con IA: %v", domain.ErrAIAnalysis, err)
	}
	if strings.TrimSpace(completion.Content) == "" {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: la API no retornó contenido", domain.ErrAIAnalysis)
	}

	costInfo := domain.CostInfo{
		Cost:         CalculateCost(a.Pricing, completion.Usage),
		Model:        completion.Model,
		TokensInput:  completion.Usage.InputTokens,
		TokensOutput: completion.Usage.OutputTokens,
		CacheHit:     completion.Usage.CacheReadTokens > 0,
	}

	slog.Info("analysis completed",
		slog.Int("input_tokens", completion.Usage.InputTokens),
		slog.Int("output_tokens", completion.Usage.OutputTokens),
		slog.Bool("cache_hit", costInfo.CacheHit),
		slog.Float64("cost_usd", costInfo.Cost))

	analysis, err := parseAnalysisResponse(completion.Content)
	if err != nil {
		return domain.RubricAnalysis{}, err
	}
	analysis.CostInfo = costInfo
	return analysis, nil
}

var (
	fenceOpenRe   = regexp.MustCompile("^```(?:json)?\\s*")
	fenceCloseRe  = regexp.MustCompile("\\s*```$")
	phaseSuffixRe = regexp.MustCompile(`^(F[1-5])_`)
)

// stripCodeFences removes a surrounding markdown code block, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// rawAnalysis is the loose first-pass decode target; alternate key spellings
// the model is known to emit are accepted here and normalized afterwards.
type rawAnalysis struct {
	Scores           map[string]json.RawMessage `json:"scores"`
	OverallScores    map[string]json.RawMessage `json:"overallScores"`
	ExerciseAnalysis json.RawMessage            `json:"exerciseAnalysis"`
	Recommendations  json.RawMessage            `json:"recommendations"`
}

func parseAnalysisResponse(content string) (domain.RubricAnalysis, error) {
	cleaned := stripCodeFences(content)

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		// The model occasionally truncates or malforms long JSON; run a
		// repair pass before giving up.
		repaired, repErr := jsonrepair.JSONRepair(cleaned)
		if repErr != nil {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: no se pudo parsear la respuesta de la IA: %v", domain.ErrAIAnalysis, err)
		}
		slog.Warn("model JSON required repair", slog.String("error", err.Error()))
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: no se pudo parsear la respuesta de la IA: %v", domain.ErrAIAnalysis, err)
		}
	}

	scores := raw.Scores
	if len(scores) == 0 && len(raw.OverallScores) > 0 {
		slog.Warn("model used 'overallScores' key, normalizing to 'scores'")
		scores = raw.OverallScores
	}
	if len(scores) == 0 {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: la respuesta no contiene scores", domain.ErrAIAnalysis)
	}

	// Keys like "F1_Comprension" collapse to their canonical phase id.
	normalized := make(map[string]json.RawMessage, len(scores))
	for key, val := range scores {
		if m := phaseSuffixRe.FindStringSubmatch(key); m != nil {
			slog.Warn("model used suffixed phase key, normalizing", slog.String("key", key))
			normalized[m[1]] = val
		} else {
			normalized[key] = val
		}
	}

	var phases domain.PhaseScores
	targets := map[domain.PhaseID]*domain.PhaseScore{
		domain.PhaseF1: &phases.F1,
		domain.PhaseF2: &phases.F2,
		domain.PhaseF3: &phases.F3,
		domain.PhaseF4: &phases.F4,
		domain.PhaseF5: &phases.F5,
	}
	for _, id := range domain.PhaseOrder {
		val, ok := normalized[string(id)]
		if !ok {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: falta score para %s", domain.ErrAIAnalysis, id)
		}
		var ps domain.PhaseScore
		if err := json.Unmarshal(val, &ps); err != nil {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: score de %s tiene formato inválido: %v", domain.ErrAIAnalysis, id, err)
		}
		if ps.Level < 1 || ps.Level > 4 {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: nivel de %s fuera de rango: %d", domain.ErrAIAnalysis, id, ps.Level)
		}
		if ps.Score < 0 || ps.Score > 100 {
			return domain.RubricAnalysis{}, fmt.Errorf("%w: puntaje de %s fuera de rango: %.1f", domain.ErrAIAnalysis, id, ps.Score)
		}
		*targets[id] = ps
	}

	if len(raw.ExerciseAnalysis) == 0 || raw.ExerciseAnalysis[0] != '[' {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: exerciseAnalysis debe ser un array", domain.ErrAIAnalysis)
	}
	var exercises []domain.ExerciseAnalysis
	if err := json.Unmarshal(raw.ExerciseAnalysis, &exercises); err != nil {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: exerciseAnalysis inválido: %v", domain.ErrAIAnalysis, err)
	}

	if len(raw.Recommendations) == 0 || raw.Recommendations[0] != '[' {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: recommendations debe ser un array", domain.ErrAIAnalysis)
	}
	var recs []domain.Recommendation
	if err := json.Unmarshal(raw.Recommendations, &recs); err != nil {
		return domain.RubricAnalysis{}, fmt.Errorf("%w: recommendations inválido: %v", domain.ErrAIAnalysis, err)
	}

	return domain.RubricAnalysis{
		Scores:           phases,
		ExerciseAnalysis: exercises,
		Recommendations:  recs,
	}, nil
}
