package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// DefaultMatchThreshold is the minimum similarity (percent) accepted when
// the caller does not override it.
const DefaultMatchThreshold = 90.0

// nameFold strips diacritics: NFD decomposition with combining marks removed.
var nameFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeName lowers a name to its matching form: no diacritics, lowercase,
// only letters, digits, spaces and hyphens.
func NormalizeName(s string) string {
	folded, _, err := transform.String(nameFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity returns the percent similarity of two names after
// normalization: 100 for identical forms, otherwise scaled edit distance.
func Similarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == nb {
		return 100
	}
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 0
	}
	sim := float64(maxLen-levenshtein.ComputeDistance(na, nb)) / float64(maxLen) * 100
	if sim < 0 {
		return 0
	}
	if sim > 100 {
		return 100
	}
	return sim
}

// MatcherService resolves exam-file surnames against the student roster.
type MatcherService struct {
	Students  domain.StudentRepository
	Threshold float64
}

// NewMatcherService builds a matcher with the given default threshold;
// zero means DefaultMatchThreshold.
func NewMatcherService(students domain.StudentRepository, threshold float64) *MatcherService {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &MatcherService{Students: students, Threshold: threshold}
}

// Match finds the active student whose name best matches the surname.
// A threshold of zero uses the service default. The best candidate below the
// threshold yields ErrStudentNotFound with a diagnostic naming it.
func (m *MatcherService) Match(ctx context.Context, surname string, threshold float64, filter *domain.MatchContext) (domain.MatchResult, error) {
	if threshold <= 0 {
		threshold = m.Threshold
	}

	// Biofísica rosters are sede-based and may carry an empty subjects
	// field, so the subject filter is skipped for that subject.
	if filter != nil && filter.Subject == "Biofísica" {
		f := *filter
		f.Subject = ""
		filter = &f
	}

	students, err := m.Students.ActiveStudents(ctx, filter)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("%w: error al buscar estudiante en la base de datos: %v", domain.ErrStudentNotFound, err)
	}
	if len(students) == 0 {
		if filter != nil {
			return domain.MatchResult{}, fmt.Errorf("%w: no hay estudiantes activos en %s - %s", domain.ErrStudentNotFound, filter.Division, filter.Subject)
		}
		return domain.MatchResult{}, fmt.Errorf("%w: no hay estudiantes activos en la base de datos", domain.ErrStudentNotFound)
	}

	best := domain.MatchResult{Confidence: -1}
	for _, s := range students {
		conf := nameSimilarity(surname, s.Name)
		if conf > best.Confidence {
			best = domain.MatchResult{Student: s, Confidence: conf}
		}
	}

	if best.Confidence < threshold {
		return domain.MatchResult{}, fmt.Errorf(
			"%w: no se encontró estudiante con apellido similar a %q (Mejor match: %q con %.1f%% de similitud, threshold: %.0f%%)",
			domain.ErrStudentNotFound, surname, best.Student.Name, best.Confidence, threshold,
		)
	}
	return best, nil
}

// ValidateStudent resolves a known student id, returning full confidence.
func (m *MatcherService) ValidateStudent(ctx context.Context, studentID string) (domain.MatchResult, error) {
	s, err := m.Students.StudentByID(ctx, studentID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("%w: estudiante no encontrado o inactivo: %s", domain.ErrStudentNotFound, studentID)
	}
	return domain.MatchResult{Student: s, Confidence: 100}, nil
}

// nameSimilarity compares a surname against a roster name using several
// strategies and keeps the best score. Roster names come in "Apellido,
// Nombre" and free-order forms, so individual tokens, leading and trailing
// word pairs, and the whole name are all tried.
func nameSimilarity(surname, studentName string) float64 {
	var sims []float64

	if strings.Contains(studentName, ",") {
		if sp := strings.TrimSpace(strings.SplitN(studentName, ",", 2)[0]); sp != "" {
			sims = append(sims, Similarity(surname, sp))
		}
	} else {
		parts := strings.Fields(studentName)
		for _, p := range parts {
			sims = append(sims, Similarity(surname, p))
		}
		if len(parts) >= 2 {
			sims = append(sims,
				Similarity(surname, parts[len(parts)-1]),
				Similarity(surname, strings.Join(parts[len(parts)-2:], " ")),
				Similarity(surname, parts[0]),
				Similarity(surname, strings.Join(parts[:2], " ")),
			)
		}
	}

	full := strings.TrimSpace(strings.Join(strings.Fields(strings.ReplaceAll(studentName, ",", " ")), " "))
	sims = append(sims, Similarity(surname, full))

	best := 0.0
	for _, s := range sims {
		if s > best {
			best = s
		}
	}
	return best
}
