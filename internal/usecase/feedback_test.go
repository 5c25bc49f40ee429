package usecase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/usecase"
)

func feedbackAnalysis() domain.RubricAnalysis {
	return domain.RubricAnalysis{
		Scores: uniformScores(3, 77),
		ExerciseAnalysis: []domain.ExerciseAnalysis{{
			ExerciseNumber:   1,
			Strengths:        []string{"Planteo claro"},
			Weaknesses:       []string{"Sin verificación"},
			SpecificFeedback: "Buen desarrollo del ejercicio.",
			PhaseEvaluations: domain.PhaseEvaluations{
				F1: domain.PhaseComment{Level: 3, Comment: "comprende"},
				F2: domain.PhaseComment{Level: 3, Comment: "identifica"},
				F3: domain.PhaseComment{Level: 3, Comment: "selecciona"},
				F4: domain.PhaseComment{Level: 3, Comment: "ejecuta"},
				F5: domain.PhaseComment{Level: 2, Comment: "no verifica"},
			},
		}},
		Recommendations: []domain.Recommendation{{
			Priority:           "alta",
			Title:              "Verificar resultados",
			Reason:             "La verificación faltó en todos los ejercicios.",
			Steps:              []string{"Revisar unidades", "Evaluar orden de magnitud"},
			SuggestedResources: "Capítulo 3",
		}},
	}
}

func TestGenerateFeedback_GoldenSubstrings(t *testing.T) {
	t.Parallel()
	student := domain.Student{ID: "u1", Name: "González, Juan"}
	meta := domain.ExamMetadata{Subject: "Física", ExamTopic: "Dinámica", ExamDate: "2026-03-15", InstructorID: "i1"}
	now := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

	out := usecase.GenerateFeedback(student, meta, feedbackAnalysis(), domain.Grading{Score: 77}, "Prof. Ramírez", now)

	assert.True(t, strings.HasPrefix(out, "# RETROALIMENTACIÓN - González, Juan\n"))
	assert.Contains(t, out, "## Examen: Física - Dinámica")
	assert.Contains(t, out, "### Fecha: 15 de marzo de 2026")
	assert.Contains(t, out, "### Nota Final: 77/100")
	assert.Contains(t, out, "Has obtenido **77/100** en este examen.")
	assert.Contains(t, out, "| F4 | Ejecución y Cálculos | 3 | 77/100 | 30% |")
	assert.Contains(t, out, "### Ejercicio 1")
	assert.Contains(t, out, "- Planteo claro")
	assert.Contains(t, out, "**Retroalimentación Específica:**\nBuen desarrollo del ejercicio.")
	assert.Contains(t, out, "- **F5 - Verificación:** Nivel 2 - no verifica")
	assert.Contains(t, out, "### 🔴 Verificar resultados")
	assert.Contains(t, out, "**Recursos sugeridos:** Capítulo 3")
	assert.Contains(t, out, "- [ ] ")
	assert.Contains(t, out, "**Corrección realizada por:** Prof. Ramírez")
	assert.Contains(t, out, "**Fecha de corrección:** 2026-03-20")
	assert.Contains(t, out, "Buen trabajo.")
	// no adjustment block without a contextual adjustment
	assert.NotContains(t, out, "Ajuste Contextual Aplicado")
}

func TestGenerateFeedback_AdjustmentBlock(t *testing.T) {
	t.Parallel()
	analysis := feedbackAnalysis()
	analysis.ContextualAdjustment = &domain.ContextualAdjustment{
		OriginalScore: 72,
		AdjustedScore: 77,
		Adjustment:    5,
		Justification: "Comprensión conceptual demostrada pese a errores aritméticos.",
		Evidence:      "planteo correcto de la segunda ley",
	}
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Dinámica", ExamDate: "2026-03-15"}, analysis, domain.Grading{Score: 77}, "Instructor", time.Now())

	assert.Contains(t, out, "### ⚖️ Ajuste Contextual Aplicado")
	assert.Contains(t, out, "| **Evaluación Estricta (Rúbrica)** | 72.0/100 |")
	assert.Contains(t, out, "| **Ajuste Contextual** | +5.0 puntos |")
	assert.Contains(t, out, "| **Nota Final** | **77.0/100** |")
	assert.Contains(t, out, "¿Por qué recibiste puntos adicionales?")
	assert.Contains(t, out, `**Evidencia en tu respuesta:** "planteo correcto de la segunda ley"`)
	assert.Contains(t, out, "sentido común pedagógico")
}

func TestGenerateFeedback_ZeroAdjustmentHidden(t *testing.T) {
	t.Parallel()
	analysis := feedbackAnalysis()
	analysis.ContextualAdjustment = &domain.ContextualAdjustment{
		OriginalScore: 77,
		AdjustedScore: 77,
		Adjustment:    0,
		Justification: "No se pudo aplicar ajuste contextual debido a un error técnico. Se mantiene el score de la evaluación estricta.",
		Evidence:      "N/A",
	}
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Dinámica", ExamDate: "2026-03-15"}, analysis, domain.Grading{Score: 77}, "Instructor", time.Now())

	assert.NotContains(t, out, "Ajuste Contextual Aplicado")
	assert.NotContains(t, out, "error técnico")
	assert.Contains(t, out, "### Nota Final: 77/100")
}

func TestGenerateFeedback_NegativeAdjustment(t *testing.T) {
	t.Parallel()
	analysis := feedbackAnalysis()
	analysis.ContextualAdjustment = &domain.ContextualAdjustment{
		OriginalScore: 80,
		AdjustedScore: 75,
		Adjustment:    -5,
		Justification: "Errores conceptuales de fondo.",
		Evidence:      "confusión entre masa y peso",
	}
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Dinámica", ExamDate: "2026-03-15"}, analysis, domain.Grading{Score: 75}, "Instructor", time.Now())

	assert.Contains(t, out, "| **Ajuste Contextual** | -5.0 puntos |")
	assert.Contains(t, out, "¿Por qué recibiste un ajuste?")
}

func TestGenerateFeedback_FractionalScoreKeptVerbatim(t *testing.T) {
	t.Parallel()
	analysis := feedbackAnalysis()
	analysis.Scores.F1.Score = 92.5
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Tema", ExamDate: "2026-03-15"}, analysis, domain.Grading{Score: 92.5}, "Instructor", time.Now())
	assert.Contains(t, out, "### Nota Final: 92.5/100")
	assert.Contains(t, out, "| F1 | Comprensión del Problema | 3 | 92.5/100 |")
}

func TestGenerateFeedback_UnparseableDatePassesThrough(t *testing.T) {
	t.Parallel()
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Tema", ExamDate: "primer trimestre"}, feedbackAnalysis(), domain.Grading{Score: 60}, "Instructor", time.Now())
	assert.Contains(t, out, "### Fecha: primer trimestre")
}

func TestGenerateFeedback_NextStepsTargetWeakestPhase(t *testing.T) {
	t.Parallel()
	analysis := feedbackAnalysis()
	analysis.Scores.F5 = domain.PhaseScore{Level: 1, Score: 30}
	out := usecase.GenerateFeedback(domain.Student{Name: "X"}, domain.ExamMetadata{Subject: "Física", ExamTopic: "Tema", ExamDate: "2026-03-15"}, analysis, domain.Grading{Score: 65}, "Instructor", time.Now())
	assert.Contains(t, out, "Siempre verificar dimensionalmente el resultado")
	assert.Contains(t, out, "Incorporar el hábito de verificar resultados")
}
