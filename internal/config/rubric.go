package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RubricSettings carries the tunable grading parameters. The zero value is
// not usable; obtain one via DefaultRubricSettings or LoadRubricSettings.
type RubricSettings struct {
	// RubricText replaces the built-in grading rubric in the analyzer's
	// system prompt when non-empty. The JSON output schema is appended
	// separately and cannot be overridden.
	RubricText string `yaml:"rubric_text"`
	// Weights per phase; must sum to 1.0.
	Weights struct {
		F1 float64 `yaml:"f1"`
		F2 float64 `yaml:"f2"`
		F3 float64 `yaml:"f3"`
		F4 float64 `yaml:"f4"`
		F5 float64 `yaml:"f5"`
	} `yaml:"weights"`
	Adjustment AdjustmentBounds `yaml:"adjustment"`
}

// DefaultRubricSettings returns the standard 5-phase weighting with the
// given adjustment bounds.
func DefaultRubricSettings(bounds AdjustmentBounds) RubricSettings {
	var s RubricSettings
	s.Weights.F1 = 0.15
	s.Weights.F2 = 0.20
	s.Weights.F3 = 0.25
	s.Weights.F4 = 0.30
	s.Weights.F5 = 0.10
	s.Adjustment = bounds
	return s
}

// LoadRubricSettings reads a YAML override file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadRubricSettings(path string, bounds AdjustmentBounds) (RubricSettings, error) {
	s := DefaultRubricSettings(bounds)
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RubricSettings{}, fmt.Errorf("op=config.LoadRubricSettings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return RubricSettings{}, fmt.Errorf("op=config.LoadRubricSettings: parse %s: %w", path, err)
	}
	sum := s.Weights.F1 + s.Weights.F2 + s.Weights.F3 + s.Weights.F4 + s.Weights.F5
	if sum < 0.999 || sum > 1.001 {
		return RubricSettings{}, fmt.Errorf("op=config.LoadRubricSettings: weights sum to %.3f, want 1.0", sum)
	}
	return s, nil
}
