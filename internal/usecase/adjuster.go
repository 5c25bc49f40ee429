package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

const (
	adjustmentMaxTokens   = 1000
	adjustmentTemperature = 0.2
)

const neutralJustification = "No se pudo aplicar ajuste contextual debido a un error técnico. Se mantiene el score de la evaluación estricta."

// AdjusterService reviews the strict rubric score with a second reasoning
// call and applies a bounded pedagogical correction. Every failure is
// absorbed into a neutral result: a missing adjustment degrades quality,
// never availability.
type AdjusterService struct {
	AI      domain.AIClient
	Bounds  config.AdjustmentBounds
	Pricing config.AIPricing
}

// NewAdjusterService builds an adjuster with the given tier bounds.
func NewAdjusterService(ai domain.AIClient, bounds config.AdjustmentBounds, pricing config.AIPricing) *AdjusterService {
	return &AdjusterService{AI: ai, Bounds: bounds, Pricing: pricing}
}

// Apply runs the contextual review. The returned adjustment always honors
// the tier bound for originalScore and keeps the adjusted score in [0,100].
func (s *AdjusterService) Apply(ctx context.Context, originalScore float64, scores domain.PhaseScores, analyses []domain.ExerciseAnalysis, rawContent string) domain.ContextualAdjustment {
	maxAdjust := s.Bounds.MaxFor(originalScore)

	system := AdjustmentSystemPrompt(s.Bounds)
	user := AdjustmentUserPrompt(originalScore, scores, analyses, rawContent, maxAdjust)

	completion, err := s.AI.Send(ctx, system, user, domain.SendOptions{
		MaxTokens:   adjustmentMaxTokens,
		Temperature: adjustmentTemperature,
		CacheSystem: true,
	})
	if err != nil {
		slog.Error("contextual adjustment call failed, keeping strict score", slog.String("error", err.Error()))
		return s.neutral(originalScore)
	}

	var parsed struct {
		AdjustedScore float64 `json:"adjustedScore"`
		Adjustment    float64 `json:"adjustment"`
		Justification string  `json:"justification"`
		Evidence      string  `json:"evidenceForAdjustment"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(completion.Content)), &parsed); err != nil {
		slog.Error("contextual adjustment response unparseable, keeping strict score", slog.String("error", err.Error()))
		return s.neutral(originalScore)
	}

	adjustment := parsed.Adjustment
	if adjustment > maxAdjust || adjustment < -maxAdjust {
		slog.Warn("adjustment out of bounds, clamping",
			slog.Float64("adjustment", adjustment),
			slog.Float64("max", maxAdjust))
		adjustment = clamp(adjustment, -maxAdjust, maxAdjust)
	}
	adjustedScore := clamp(originalScore+adjustment, 0, 100)

	result := domain.ContextualAdjustment{
		OriginalScore: originalScore,
		AdjustedScore: adjustedScore,
		Adjustment:    adjustment,
		Justification: parsed.Justification,
		Evidence:      parsed.Evidence,
		AppliedAt:     time.Now(),
		CostInfo: domain.CostInfo{
			Cost:         CalculateCost(s.Pricing, completion.Usage),
			Model:        completion.Model,
			TokensInput:  completion.Usage.InputTokens,
			TokensOutput: completion.Usage.OutputTokens,
			CacheHit:     completion.Usage.CacheReadTokens > 0,
		},
	}

	slog.Info("contextual adjustment applied",
		slog.Float64("original", originalScore),
		slog.Float64("adjusted", result.AdjustedScore),
		slog.Float64("adjustment", result.Adjustment),
		slog.Bool("cache_hit", result.CostInfo.CacheHit))
	return result
}

func (s *AdjusterService) neutral(originalScore float64) domain.ContextualAdjustment {
	return domain.ContextualAdjustment{
		OriginalScore: originalScore,
		AdjustedScore: originalScore,
		Adjustment:    0,
		Justification: neutralJustification,
		Evidence:      "N/A",
		AppliedAt:     time.Now(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
