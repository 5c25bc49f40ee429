package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// GenerateFeedback renders the full markdown feedback document for one
// evaluated exam. Deterministic: `now` only feeds the correction-date line.
func GenerateFeedback(student domain.Student, meta domain.ExamMetadata, analysis domain.RubricAnalysis, grading domain.Grading, instructorName string, now time.Time) string {
	var b strings.Builder
	score := formatScore(grading.Score)
	scores := analysis.Scores

	fmt.Fprintf(&b, `# RETROALIMENTACIÓN - %s

## Examen: %s - %s
### Fecha: %s
### Nota Final: %s/100

---

## 📊 Resumen de tu Desempeño

Has obtenido **%s/100** en este examen.
`, student.Name, meta.Subject, meta.ExamTopic, formatExamDate(meta.ExamDate), score, score)

	// The neutral fallback (adjustment 0) stays invisible to the student.
	if adj := analysis.ContextualAdjustment; adj.Applied() {
		writeAdjustmentBlock(&b, adj)
	}

	fmt.Fprintf(&b, `
### Distribución por Fases

| Fase | Descripción | Nivel | Puntaje | Peso |
|------|-------------|-------|---------|------|
| F1 | Comprensión del Problema | %d | %s/100 | 15%% |
| F2 | Identificación de Variables | %d | %s/100 | 20%% |
| F3 | Selección de Herramientas | %d | %s/100 | 25%% |
| F4 | Ejecución y Cálculos | %d | %s/100 | 30%% |
| F5 | Verificación y Análisis | %d | %s/100 | 10%% |

### Niveles de Desempeño
- **Nivel 4 (85-100):** Excelente - Dominio completo de la fase
- **Nivel 3 (70-84):** Bueno - Comprensión sólida con detalles menores
- **Nivel 2 (55-69):** En Desarrollo - Comprensión básica, necesita práctica
- **Nivel 1 (0-54):** Inicial - Requiere apoyo significativo

---

## 🎯 Análisis Ejercicio por Ejercicio

`,
		scores.F1.Level, formatScore(scores.F1.Score),
		scores.F2.Level, formatScore(scores.F2.Score),
		scores.F3.Level, formatScore(scores.F3.Score),
		scores.F4.Level, formatScore(scores.F4.Score),
		scores.F5.Level, formatScore(scores.F5.Score))

	for _, ex := range analysis.ExerciseAnalysis {
		writeExerciseSection(&b, ex)
	}

	b.WriteString("## 💡 Recomendaciones para Mejorar\n\n")
	for _, rec := range analysis.Recommendations {
		writeRecommendationSection(&b, rec)
	}

	// Next steps focus on the numerically weakest phase.
	lowest := domain.PhaseName(Statistics(scores).Lowest)
	fmt.Fprintf(&b, `## 📈 Próximos Pasos

### Plan de Acción Inmediato:
%s

### Enfócate en:
%s

### Seguimiento:
Tu instructor revisará tu progreso en las próximas actividades. Si tienes dudas, no dudes en consultar durante las clases o tutorías.

---

## 📌 Mensaje Final

%s

---

**Corrección realizada por:** %s
**Sistema:** Intellego Platform - Corrección Automática v2.0
**Método:** Evaluación con Rúbrica 5-FASE
**Fecha de corrección:** %s

**Nota:** Este feedback fue generado automáticamente usando IA con supervisión del instructor. Si tienes preguntas sobre la evaluación, consulta con tu profesor.
`, checklist(actionPlan(lowest)), focusArea(lowest), ScoreMessage(grading.Score), instructorName, now.Format("2006-01-02"))

	return b.String()
}

func writeAdjustmentBlock(b *strings.Builder, adj *domain.ContextualAdjustment) {
	sign := ""
	reason := "puntos adicionales"
	if adj.Adjustment >= 0 {
		sign = "+"
	} else {
		reason = "un ajuste"
	}

	fmt.Fprintf(b, `
### ⚖️ Ajuste Contextual Aplicado

Tu evaluación ha sido revisada con criterio pedagógico:

| Concepto | Puntaje |
|----------|---------|
| **Evaluación Estricta (Rúbrica)** | %.1f/100 |
| **Ajuste Contextual** | %s%.1f puntos |
| **Nota Final** | **%.1f/100** |

#### ¿Por qué recibiste %s?

%s

`, adj.OriginalScore, sign, adj.Adjustment, adj.AdjustedScore, reason, adj.Justification)

	if adj.Evidence != "" {
		fmt.Fprintf(b, "**Evidencia en tu respuesta:** %q\n\n", adj.Evidence)
	}

	b.WriteString("> 💡 **Nota:** El sistema aplica \"sentido común pedagógico\" para reconocer comprensión conceptual, métodos alternativos válidos, y diferenciar errores menores de fundamentales. Esto asegura que tu evaluación sea justa y constructiva.\n\n---\n")
}

func writeExerciseSection(b *strings.Builder, ex domain.ExerciseAnalysis) {
	fmt.Fprintf(b, "### Ejercicio %d\n\n", ex.ExerciseNumber)

	b.WriteString("**Fortalezas:**\n")
	for _, s := range ex.Strengths {
		fmt.Fprintf(b, "- %s\n", s)
	}
	b.WriteString("\n**Áreas de Mejora:**\n")
	for _, w := range ex.Weaknesses {
		fmt.Fprintf(b, "- %s\n", w)
	}
	fmt.Fprintf(b, "\n**Retroalimentación Específica:**\n%s\n\n", ex.SpecificFeedback)

	pe := ex.PhaseEvaluations
	fmt.Fprintf(b, `**Evaluación por Fase:**
- **F1 - Comprensión:** Nivel %d - %s
- **F2 - Variables:** Nivel %d - %s
- **F3 - Herramientas:** Nivel %d - %s
- **F4 - Ejecución:** Nivel %d - %s
- **F5 - Verificación:** Nivel %d - %s

---

`,
		pe.F1.Level, pe.F1.Comment,
		pe.F2.Level, pe.F2.Comment,
		pe.F3.Level, pe.F3.Comment,
		pe.F4.Level, pe.F4.Comment,
		pe.F5.Level, pe.F5.Comment)
}

func writeRecommendationSection(b *strings.Builder, rec domain.Recommendation) {
	fmt.Fprintf(b, "### %s %s\n\n**Por qué es importante:**\n%s\n\n**Cómo implementarlo:**\n", recommendationIcon(rec.Priority), rec.Title, rec.Reason)
	for _, s := range rec.Steps {
		fmt.Fprintf(b, "- %s\n", s)
	}
	b.WriteString("\n")
	if rec.SuggestedResources != "" {
		fmt.Fprintf(b, "**Recursos sugeridos:** %s\n\n", rec.SuggestedResources)
	}
	b.WriteString("---\n\n")
}

func recommendationIcon(priority string) string {
	switch priority {
	case "alta":
		return PriorityIcon(1)
	case "media":
		return PriorityIcon(2)
	default:
		return PriorityIcon(3)
	}
}

// formatScore renders a score the way the feedback shows it: no trailing
// zeros, so 77 stays "77" and 92.5 stays "92.5".
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// formatExamDate renders an ISO date in Spanish long form; unparseable input
// passes through untouched.
func formatExamDate(isoDate string) string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(isoDate))
	if err != nil {
		return isoDate
	}
	return fmt.Sprintf("%d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

func checklist(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- [ ] " + it
	}
	return strings.Join(lines, "\n")
}

func actionPlan(phaseName string) []string {
	switch phaseName {
	case "Comprensión del Problema":
		return []string{
			"Leer el enunciado al menos dos veces antes de comenzar",
			"Subrayar los datos conocidos y las incógnitas",
			"Reformular el problema con tus propias palabras",
		}
	case "Identificación de Variables":
		return []string{
			"Crear una tabla con todas las variables del problema",
			"Asignar símbolos claros y consistentes",
			"Verificar las unidades de cada variable",
		}
	case "Selección de Herramientas":
		return []string{
			"Repasar las fórmulas y leyes relevantes del tema",
			"Justificar por qué elegiste cada fórmula",
			"Practicar ejercicios similares del libro",
		}
	case "Ejecución y Cálculos":
		return []string{
			"Desarrollar paso a paso sin saltear etapas",
			"Verificar cada cálculo aritmético",
			"Mantener un orden claro en la presentación",
		}
	case "Verificación y Análisis":
		return []string{
			"Siempre verificar dimensionalmente el resultado",
			"Evaluar si el resultado tiene sentido físicamente",
			"Comparar con casos conocidos o ejemplos del libro",
		}
	default:
		return []string{
			"Repasar los conceptos fundamentales del tema",
			"Practicar con ejercicios adicionales",
			"Consultar dudas con el instructor",
		}
	}
}

func focusArea(phaseName string) string {
	switch phaseName {
	case "Comprensión del Problema":
		return "Mejorar la lectura analítica de enunciados y la identificación de datos e incógnitas."
	case "Identificación de Variables":
		return "Fortalecer la organización de información y el manejo de notación científica."
	case "Selección de Herramientas":
		return "Repasar las fórmulas y leyes del tema, y practicar su aplicación."
	case "Ejecución y Cálculos":
		return "Desarrollar mayor precisión en los cálculos y presentación ordenada."
	case "Verificación y Análisis":
		return "Incorporar el hábito de verificar resultados y analizar su coherencia."
	default:
		return "Fortalecer las bases conceptuales del tema."
	}
}
