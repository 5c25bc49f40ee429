package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.InDelta(t, 90, cfg.MatchThreshold, 0.001)
	assert.Equal(t, 120*time.Second, cfg.AITimeout)
	assert.Equal(t, time.Hour, cfg.BatchRetention)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("MATCH_THRESHOLD", "85")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.InDelta(t, 85, cfg.MatchThreshold, 0.001)
	assert.True(t, cfg.IsProd())
}

func TestGetAIBackoffConfig_TestEnvShortens(t *testing.T) {
	cfg := config.Config{AppEnv: "test"}
	maxElapsed, initial, maxInterval, multiplier := cfg.GetAIBackoffConfig()
	assert.Equal(t, 5*time.Second, maxElapsed)
	assert.Equal(t, 100*time.Millisecond, initial)
	assert.Equal(t, time.Second, maxInterval)
	assert.InDelta(t, 2.0, multiplier, 0.001)
}

func TestAIPricing(t *testing.T) {
	t.Run("defaults from environment", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultAIPricing(), cfg.AIPricing())
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("AI_PRICE_INPUT_PER_M", "3.00")
		t.Setenv("AI_PRICE_CACHE_READ_PER_M", "0.30")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.InDelta(t, 3.00, cfg.AIPricing().InputPerM, 0.001)
		assert.InDelta(t, 0.30, cfg.AIPricing().CacheReadPerM, 0.001)
	})

	t.Run("cost", func(t *testing.T) {
		p := config.DefaultAIPricing()
		assert.InDelta(t, 1.00, p.Cost(1_000_000, 0, 0, 0), 1e-9)
		assert.InDelta(t, 5.00, p.Cost(0, 1_000_000, 0, 0), 1e-9)
		// regular 300k*1.00 + write 200k*1.25 + read 500k*0.10 + out 100k*5.00
		assert.InDelta(t, 0.3+0.25+0.05+0.5, p.Cost(1_000_000, 100_000, 200_000, 500_000), 1e-9)
		assert.Zero(t, p.Cost(0, 0, 0, 0))
	})
}

func TestAdjustmentBounds_MaxFor(t *testing.T) {
	b := config.AdjustmentBounds{TierLow: 40, TierHigh: 70, MaxLow: 20, MaxMid: 15, MaxHigh: 10}
	assert.InDelta(t, 20, b.MaxFor(0), 0.001)
	assert.InDelta(t, 20, b.MaxFor(39.9), 0.001)
	assert.InDelta(t, 15, b.MaxFor(40), 0.001)
	assert.InDelta(t, 15, b.MaxFor(70), 0.001)
	assert.InDelta(t, 10, b.MaxFor(70.1), 0.001)
	assert.InDelta(t, 10, b.MaxFor(100), 0.001)
}

func TestDefaultRubricSettings(t *testing.T) {
	bounds := config.AdjustmentBounds{TierLow: 40, TierHigh: 70, MaxLow: 20, MaxMid: 15, MaxHigh: 10}
	s := config.DefaultRubricSettings(bounds)
	sum := s.Weights.F1 + s.Weights.F2 + s.Weights.F3 + s.Weights.F4 + s.Weights.F5
	assert.InDelta(t, 1.0, sum, 0.001)
	assert.InDelta(t, 0.30, s.Weights.F4, 0.001)
	assert.Equal(t, bounds, s.Adjustment)
}

func TestLoadRubricSettings(t *testing.T) {
	bounds := config.AdjustmentBounds{TierLow: 40, TierHigh: 70, MaxLow: 20, MaxMid: 15, MaxHigh: 10}

	t.Run("empty path returns defaults", func(t *testing.T) {
		s, err := config.LoadRubricSettings("", bounds)
		require.NoError(t, err)
		assert.InDelta(t, 0.15, s.Weights.F1, 0.001)
	})

	t.Run("yaml override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rubric.yaml")
		data := "weights:\n  f1: 0.2\n  f2: 0.2\n  f3: 0.2\n  f4: 0.2\n  f5: 0.2\nadjustment:\n  tier_low: 50\n  tier_high: 80\n  max_low: 25\n  max_mid: 10\n  max_high: 5\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		s, err := config.LoadRubricSettings(path, bounds)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, s.Weights.F3, 0.001)
		assert.InDelta(t, 50, s.Adjustment.TierLow, 0.001)
		assert.InDelta(t, 5, s.Adjustment.MaxHigh, 0.001)
	})

	t.Run("rubric text override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rubric.yaml")
		data := "rubric_text: |\n  # RÚBRICA PERSONALIZADA\n  Criterios propios del instructor.\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		s, err := config.LoadRubricSettings(path, bounds)
		require.NoError(t, err)
		assert.Contains(t, s.RubricText, "RÚBRICA PERSONALIZADA")
		// weights keep their defaults when the file only overrides the text
		assert.InDelta(t, 0.30, s.Weights.F4, 0.001)
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rubric.yaml")
		data := "weights:\n  f1: 0.5\n  f2: 0.5\n  f3: 0.5\n  f4: 0.5\n  f5: 0.5\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		_, err := config.LoadRubricSettings(path, bounds)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights sum")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadRubricSettings(filepath.Join(t.TempDir(), "missing.yaml"), bounds)
		require.Error(t, err)
	})
}
