package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/app"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty defaults to wildcard", "", []string{"*"}},
		{"explicit wildcard", "*", []string{"*"}},
		{"single origin", "https://app.example.com", []string{"https://app.example.com"}},
		{"multiple with spaces", " https://a.com , https://b.com ", []string{"https://a.com", "https://b.com"}},
		{"trailing comma", "https://a.com,", []string{"https://a.com"}},
		{"only commas", ",,,", []string{"*"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, app.ParseOrigins(tc.in))
		})
	}
}
