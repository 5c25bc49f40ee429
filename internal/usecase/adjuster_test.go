package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

func testBounds() config.AdjustmentBounds {
	return config.AdjustmentBounds{TierLow: 40, TierHigh: 70, MaxLow: 20, MaxMid: 15, MaxHigh: 10}
}

func newAdjuster(ai domain.AIClient) *usecase.AdjusterService {
	return usecase.NewAdjusterService(ai, testBounds(), testPricing())
}

func adjustmentJSON(adjusted, adjustment float64) string {
	return fmt.Sprintf(`{"adjustedScore": %.1f, "adjustment": %.1f, "justification": "reconocimiento conceptual", "evidenceForAdjustment": "planteo correcto en el ejercicio 2"}`, adjusted, adjustment)
}

func TestAdjusterApply_WithinBounds(t *testing.T) {
	t.Parallel()
	ai := &stubAI{content: adjustmentJSON(82, 5), usage: domain.Usage{InputTokens: 500, OutputTokens: 100}}
	svc := newAdjuster(ai)

	got := svc.Apply(context.Background(), 77, uniformScores(3, 77), nil, "contenido")
	assert.InDelta(t, 77, got.OriginalScore, 0.001)
	assert.InDelta(t, 5, got.Adjustment, 0.001)
	assert.InDelta(t, 82, got.AdjustedScore, 0.001)
	assert.Equal(t, "reconocimiento conceptual", got.Justification)
	assert.Greater(t, got.CostInfo.Cost, 0.0)

	assert.Equal(t, 1000, ai.lastOpts.MaxTokens)
	assert.InDelta(t, 0.2, ai.lastOpts.Temperature, 0.001)
}

func TestAdjusterApply_ClampsPerTier(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		original   float64
		adjustment float64
		wantAdj    float64
	}{
		{"low tier cap", 30, 1000, 20},
		{"low tier negative cap", 30, -1000, -20},
		{"mid tier cap", 55, 1000, 15},
		{"mid tier boundary at tier low", 40, 1000, 15},
		{"mid tier boundary at tier high", 70, -1000, -15},
		{"high tier cap", 85, 1000, 10},
		{"high tier negative cap", 85, -1000, -10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ai := &stubAI{content: adjustmentJSON(tc.original+tc.adjustment, tc.adjustment)}
			svc := newAdjuster(ai)
			got := svc.Apply(context.Background(), tc.original, uniformScores(3, tc.original), nil, "raw")
			assert.InDelta(t, tc.wantAdj, got.Adjustment, 0.001)
			want := tc.original + tc.wantAdj
			if want > 100 {
				want = 100
			}
			if want < 0 {
				want = 0
			}
			assert.InDelta(t, want, got.AdjustedScore, 0.001)
		})
	}
}

func TestAdjusterApply_AdjustedScoreStaysInRange(t *testing.T) {
	t.Parallel()
	ai := &stubAI{content: adjustmentJSON(105, 10)}
	svc := newAdjuster(ai)
	got := svc.Apply(context.Background(), 95, uniformScores(4, 95), nil, "raw")
	assert.InDelta(t, 100, got.AdjustedScore, 0.001)
}

func TestAdjusterApply_IgnoresModelAdjustedScore(t *testing.T) {
	t.Parallel()
	// The model reports an inconsistent adjustedScore; it is recomputed.
	ai := &stubAI{content: `{"adjustedScore": 10, "adjustment": 5, "justification": "x", "evidenceForAdjustment": "y"}`}
	svc := newAdjuster(ai)
	got := svc.Apply(context.Background(), 77, uniformScores(3, 77), nil, "raw")
	assert.InDelta(t, 82, got.AdjustedScore, 0.001)
}

func TestAdjusterApply_NeutralOnSendError(t *testing.T) {
	t.Parallel()
	ai := &stubAI{err: errors.New("timeout")}
	svc := newAdjuster(ai)
	got := svc.Apply(context.Background(), 64, uniformScores(2, 64), nil, "raw")
	assert.InDelta(t, 0, got.Adjustment, 0.001)
	assert.InDelta(t, 64, got.AdjustedScore, 0.001)
	assert.Contains(t, got.Justification, "No se pudo aplicar ajuste contextual")
	assert.Equal(t, "N/A", got.Evidence)
	assert.Zero(t, got.CostInfo.Cost)
}

func TestAdjusterApply_NeutralOnUnparseableResponse(t *testing.T) {
	t.Parallel()
	ai := &stubAI{content: "no es json"}
	svc := newAdjuster(ai)
	got := svc.Apply(context.Background(), 64, uniformScores(2, 64), nil, "raw")
	assert.InDelta(t, 64, got.AdjustedScore, 0.001)
	assert.Equal(t, "N/A", got.Evidence)
}

func TestAdjusterApply_FencedResponse(t *testing.T) {
	t.Parallel()
	ai := &stubAI{content: "```json\n" + adjustmentJSON(80, 3) + "\n```"}
	svc := newAdjuster(ai)
	got := svc.Apply(context.Background(), 77, uniformScores(3, 77), nil, "raw")
	assert.InDelta(t, 3, got.Adjustment, 0.001)
}
