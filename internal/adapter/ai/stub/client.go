// Package stub provides a deterministic AIClient for development and tests.
package stub

import (
	"context"
	"strings"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

const analysisFixture = `{
  "scores": {
    "F1": { "nivel": 3, "puntaje": 77 },
    "F2": { "nivel": 3, "puntaje": 77 },
    "F3": { "nivel": 3, "puntaje": 77 },
    "F4": { "nivel": 3, "puntaje": 77 },
    "F5": { "nivel": 3, "puntaje": 77 }
  },
  "exerciseAnalysis": [
    {
      "exerciseNumber": 1,
      "strengths": ["Desarrollo ordenado"],
      "weaknesses": ["Faltó verificación del resultado"],
      "specificFeedback": "Buen desarrollo general del ejercicio.",
      "phaseEvaluations": {
        "F1": { "nivel": 3, "comment": "Comprensión adecuada" },
        "F2": { "nivel": 3, "comment": "Variables bien identificadas" },
        "F3": { "nivel": 3, "comment": "Fórmulas correctas" },
        "F4": { "nivel": 3, "comment": "Cálculos mayormente correctos" },
        "F5": { "nivel": 3, "comment": "Verificación parcial" }
      }
    }
  ],
  "recommendations": [
    {
      "priority": "media",
      "title": "Verificar resultados",
      "reason": "La verificación fue parcial.",
      "steps": ["Revisar unidades", "Evaluar razonabilidad"],
      "suggestedResources": "Capítulo 1 del libro"
    }
  ]
}`

const adjustmentFixture = `{
  "adjustedScore": 77,
  "adjustment": 0,
  "justification": "El score original es justo según la evidencia disponible.",
  "evidenceForAdjustment": "Desarrollo consistente en todos los ejercicios."
}`

// Client returns canned responses: a full rubric analysis for analyzer
// prompts and a neutral adjustment otherwise.
type Client struct{}

// New constructs a stub client.
func New() *Client { return &Client{} }

// Send implements domain.AIClient without leaving the process.
func (*Client) Send(_ context.Context, system, _ string, _ domain.SendOptions) (domain.Completion, error) {
	content := adjustmentFixture
	if strings.Contains(system, "RÚBRICA DE EVALUACIÓN") {
		content = analysisFixture
	}
	return domain.Completion{
		Content: content,
		Model:   "stub",
		Usage:   domain.Usage{InputTokens: 100, OutputTokens: 50},
	}, nil
}
