package usecase

import (
	"fmt"
	"math"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// PhaseWeights is the weighting of the five rubric phases; weights sum to 1.
type PhaseWeights struct {
	F1, F2, F3, F4, F5 float64
}

// DefaultPhaseWeights is the standard 5-phase weighting.
var DefaultPhaseWeights = PhaseWeights{F1: 0.15, F2: 0.20, F3: 0.25, F4: 0.30, F5: 0.10}

// WeightsFromSettings lifts rubric settings into calculator weights.
func WeightsFromSettings(s config.RubricSettings) PhaseWeights {
	return PhaseWeights{F1: s.Weights.F1, F2: s.Weights.F2, F3: s.Weights.F3, F4: s.Weights.F4, F5: s.Weights.F5}
}

// CalculateScore computes the weighted final score, rounded to the nearest
// integer and clamped to [0,100].
func CalculateScore(scores domain.PhaseScores, w PhaseWeights) domain.Grading {
	weightedSum := scores.F1.Score*w.F1 +
		scores.F2.Score*w.F2 +
		scores.F3.Score*w.F3 +
		scores.F4.Score*w.F4 +
		scores.F5.Score*w.F5

	score := math.Round(weightedSum)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return domain.Grading{Score: score}
}

// ValidateScores checks every phase carries a level in [1,4] and a score in
// [0,100].
func ValidateScores(scores domain.PhaseScores) error {
	for _, id := range domain.PhaseOrder {
		ps := scores.Phase(id)
		if ps.Level < 1 || ps.Level > 4 {
			return fmt.Errorf("%w: nivel inválido en %s: %d", domain.ErrInvalidArgument, id, ps.Level)
		}
		if ps.Score < 0 || ps.Score > 100 {
			return fmt.Errorf("%w: puntaje inválido en %s: %.1f", domain.ErrInvalidArgument, id, ps.Score)
		}
	}
	return nil
}

// ScoreMessage is the closing message matching the score tier.
func ScoreMessage(score float64) string {
	switch {
	case score >= 85:
		return "¡Excelente trabajo! Tu desempeño demuestra un sólido dominio de los conceptos. Continúa con este nivel de dedicación."
	case score >= 70:
		return "Buen trabajo. Has mostrado comprensión de los conceptos. Enfócate en las áreas de mejora identificadas para alcanzar la excelencia."
	case score >= 55:
		return "Has demostrado esfuerzo y comprensión básica. Con práctica enfocada en las áreas identificadas, podrás mejorar significativamente."
	default:
		return "Este examen muestra que necesitas apoyo adicional. No te desanimes - identifica las áreas clave y busca ayuda de tu instructor."
	}
}

// PriorityIcon maps a rubric level to the urgency glyph used in feedback.
// Level 4 gets none: nothing to recommend.
func PriorityIcon(level int) string {
	switch level {
	case 1:
		return "🔴"
	case 2:
		return "🟡"
	case 3:
		return "🟢"
	default:
		return ""
	}
}

// PhaseStatistics aggregates the five phase scores.
type PhaseStatistics struct {
	Mean      float64
	MeanLevel float64
	Highest   domain.PhaseID
	Lowest    domain.PhaseID
}

// Statistics computes the per-phase aggregate view. Ties resolve to the
// earliest phase in F1..F5 order.
func Statistics(scores domain.PhaseScores) PhaseStatistics {
	highest, lowest := domain.PhaseOrder[0], domain.PhaseOrder[0]
	var sumScores float64
	var sumLevels int
	for _, id := range domain.PhaseOrder {
		ps := scores.Phase(id)
		sumScores += ps.Score
		sumLevels += ps.Level
		if ps.Score > scores.Phase(highest).Score {
			highest = id
		}
		if ps.Score < scores.Phase(lowest).Score {
			lowest = id
		}
	}
	n := float64(len(domain.PhaseOrder))
	return PhaseStatistics{
		Mean:      math.Round(sumScores / n),
		MeanLevel: math.Round(float64(sumLevels)/n*10) / 10,
		Highest:   highest,
		Lowest:    lowest,
	}
}
