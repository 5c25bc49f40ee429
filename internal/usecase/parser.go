// Package usecase implements the exam-evaluation pipeline: document parsing,
// fuzzy student matching, AI rubric analysis, score calculation, contextual
// adjustment, feedback generation, persistence, and batch orchestration.
package usecase

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

var (
	mdExtRe       = regexp.MustCompile(`(?i)\.md$`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
	sectionRe     = regexp.MustCompile(`(?m)^## `)
	exerciseRe    = regexp.MustCompile(`(?i)^Ejercicio\s+(\d+)`)
	exerciseTitle = regexp.MustCompile(`(?i)^Ejercicio\s+\d+\s*:?\s*(.*)$`)
	bareNumberRe  = regexp.MustCompile(`^(\d+)`)
	bareTitleRe   = regexp.MustCompile(`^\d+\s*:?\s*`)
)

// ExtractSurname derives the student surname from an exam file name.
// "Rosiello_Ana.md" yields "Rosiello"; "Di_Bernardo_Ana.md" yields
// "Di Bernardo" (first two tokens are treated as a compound surname).
func ExtractSurname(fileName string) (string, error) {
	base := mdExtRe.ReplaceAllString(fileName, "")
	if base == "" {
		return "", fmt.Errorf("%w: el nombre del archivo está vacío", domain.ErrParse)
	}
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(base)
	normalized := strings.TrimSpace(multiSpaceRe.ReplaceAllString(spaced, " "))
	if normalized == "" {
		return "", fmt.Errorf("%w: nombre de archivo inválido: %s", domain.ErrParse, fileName)
	}
	parts := strings.Split(normalized, " ")
	switch {
	case len(parts) == 1:
		return normalized, nil
	case len(parts) == 2:
		return parts[0], nil
	default:
		return parts[0] + " " + parts[1], nil
	}
}

// ParseExamContent segments markdown content into numbered exercises.
// Sections open with a level-2 header; "Ejercicio N" headers are preferred,
// bare "N" headers are a fallback. Documents without numbered exercises
// return an empty slice; the caller decides how to treat them.
func ParseExamContent(content string) []domain.Exercise {
	var exercises []domain.Exercise

	sections := splitSections(content)
	for _, section := range sections {
		firstLine, rest := splitFirstLine(section)
		m := exerciseRe.FindStringSubmatch(firstLine)
		if m == nil {
			continue
		}
		number, _ := strconv.Atoi(m[1])
		var title string
		if tm := exerciseTitle.FindStringSubmatch(firstLine); tm != nil {
			title = strings.TrimSpace(tm[1])
		}
		body := strings.TrimSpace(rest)
		exercises = append(exercises, domain.Exercise{
			Number:    number,
			Title:     title,
			Content:   body,
			HasAnswer: body != "",
		})
	}

	// Fallback: plain numeric headers (## 1, ## 2: Título).
	if len(exercises) == 0 {
		for _, section := range sections {
			firstLine, rest := splitFirstLine(section)
			m := bareNumberRe.FindStringSubmatch(firstLine)
			if m == nil {
				continue
			}
			number, _ := strconv.Atoi(m[1])
			title := strings.TrimSpace(bareTitleRe.ReplaceAllString(firstLine, ""))
			body := strings.TrimSpace(rest)
			exercises = append(exercises, domain.Exercise{
				Number:    number,
				Title:     title,
				Content:   body,
				HasAnswer: body != "",
			})
		}
	}

	sortExercises(exercises)
	return exercises
}

func splitSections(content string) []string {
	parts := sectionRe.Split(content, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitFirstLine(section string) (first, rest string) {
	if i := strings.IndexByte(section, '\n'); i >= 0 {
		return strings.TrimSpace(section[:i]), section[i+1:]
	}
	return strings.TrimSpace(section), ""
}

func sortExercises(exercises []domain.Exercise) {
	// Insertion sort; exam documents carry a handful of exercises.
	for i := 1; i < len(exercises); i++ {
		for j := i; j > 0 && exercises[j].Number < exercises[j-1].Number; j-- {
			exercises[j], exercises[j-1] = exercises[j-1], exercises[j]
		}
	}
}

// ParseExamFile validates and parses one uploaded exam document.
// Only .md files with text content are accepted. Documents without numbered
// exercises are treated as a single full report.
func ParseExamFile(fileName string, data []byte, size int64) (domain.ParsedExam, error) {
	if !mdExtRe.MatchString(fileName) {
		return domain.ParsedExam{}, fmt.Errorf("%w: el archivo debe tener extensión .md (archivo recibido: %s)", domain.ErrInvalidFormat, fileName)
	}

	surname, err := ExtractSurname(fileName)
	if err != nil {
		return domain.ParsedExam{}, err
	}

	rawContent := string(data)
	if strings.TrimSpace(rawContent) == "" {
		return domain.ParsedExam{}, fmt.Errorf("%w: el archivo está vacío (archivo: %s)", domain.ErrParse, fileName)
	}

	if !isTextContent(data) {
		return domain.ParsedExam{}, fmt.Errorf("%w: el contenido no es texto plano (archivo: %s)", domain.ErrInvalidFormat, fileName)
	}

	exercises := ParseExamContent(rawContent)
	if len(exercises) == 0 {
		slog.Warn("no numbered exercises found, treating as full report", slog.String("file", fileName))
		exercises = []domain.Exercise{{
			Number:    1,
			Title:     "Informe Completo",
			Content:   strings.TrimSpace(rawContent),
			HasAnswer: true,
		}}
	}

	return domain.ParsedExam{
		Surname:    surname,
		RawContent: rawContent,
		Exercises:  exercises,
		Metadata: domain.ParseMetadata{
			FileName: fileName,
			FileSize: size,
			ParsedAt: time.Now(),
		},
	}, nil
}

func isTextContent(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
