package parse_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/cinetag/pkg/parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "bare object",
			raw:  `{"genres": ["Drama"], "audience": "adults"}`,
			want: map[string]any{"genres": []any{"Drama"}, "audience": "adults"},
		},
		{
			name: "prose and json fence",
			raw:  "Here you go:\n```json\n{\"genres\":[\"Drama\"]}\n```",
			want: map[string]any{"genres": []any{"Drama"}},
		},
		{
			name: "plain fence",
			raw:  "```\n{\"genres\":[\"Comedy\"]}\n```",
			want: map[string]any{"genres": []any{"Comedy"}},
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n  {\"mood\": [\"dark\"]}  \n  ",
			want: map[string]any{"mood": []any{"dark"}},
		},
		{
			name: "trailing prose",
			raw:  "{\"genres\": [\"Horror\"]}\nLet me know if you need anything else!",
			want: map[string]any{"genres": []any{"Horror"}},
		},
		{
			name: "braces inside strings",
			raw:  `{"themes": ["a } tricky { theme"], "x": "\"quoted\" }"}`,
			want: map[string]any{"themes": []any{"a } tricky { theme"}, "x": "\"quoted\" }"},
		},
		{
			name: "nested object",
			raw:  `Result: {"genres": ["Drama"], "extra": {"k": "v"}} done`,
			want: map[string]any{"genres": []any{"Drama"}, "extra": map[string]any{"k": "v"}},
		},
		{
			name: "prose braces before the object",
			raw:  "Using {placeholders} as asked: {\"genres\": [\"Crime\"]}",
			want: map[string]any{"genres": []any{"Crime"}},
		},
		{
			name: "first of two objects",
			raw:  `{"genres": ["A"]} {"genres": ["B"]}`,
			want: map[string]any{"genres": []any{"A"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parse.Parse(tt.raw)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"no json", "no json here", "no JSON object found"},
		{"empty", "", "response is empty"},
		{"whitespace", "   \n ", "response is empty"},
		{"partial", `{"genres": ["Drama"`, "not terminated"},
		{"single quotes", `{'genres': ['Drama']}`, "not valid JSON"},
		{"array only", `["Drama", "Comedy"]`, "no JSON object found"},
		{
			"malformed outer with valid inner",
			`{"genres": ["Drama"], "extra": {"note": "x"}, "audience": adults}`,
			"not valid JSON",
		},
		{
			"unterminated outer with valid inner",
			`{"genres": ["Drama"], "extra": {"note": "x"}`,
			"not terminated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parse.Parse(tt.raw)

			require.Error(t, err)
			assert.Nil(t, got)

			var perr *parse.ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.raw, perr.Raw)
			assert.Contains(t, perr.Reason, tt.reason)
			assert.Contains(t, err.Error(), "invalid JSON response")
		})
	}
}

func TestParser_WithRepair(t *testing.T) {
	t.Parallel()

	p := parse.New(parse.WithRepair(true))

	t.Run("repairs single quotes and trailing commas", func(t *testing.T) {
		t.Parallel()

		got, err := p.Parse("```json\n{'genres': ['Drama',], 'audience': 'adults',}\n```")

		require.NoError(t, err)
		assert.Equal(t, []any{"Drama"}, got["genres"])
		assert.Equal(t, "adults", got["audience"])
	})

	t.Run("still rejects text without an object", func(t *testing.T) {
		t.Parallel()

		_, err := p.Parse("I cannot help with that.")

		var perr *parse.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Reason, "no JSON object found")
	})
}

func TestParse_StrictModeDoesNotRepair(t *testing.T) {
	t.Parallel()

	_, err := parse.New(parse.WithRepair(false)).Parse(`{"genres": ["Drama",]}`)

	var perr *parse.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, `{"genres": ["Drama",]}`, perr.Candidate)
	assert.NotNil(t, perr.Unwrap())
}

func TestParse_ManyBracesIsLinear(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"unclosed":  strings.Repeat("{", 200_000),
		"malformed": strings.Repeat("{x}", 100_000),
	}

	for name, raw := range inputs {
		start := time.Now()
		_, err := parse.New(parse.WithRepair(false)).Parse(raw)

		var perr *parse.ParseError
		require.ErrorAs(t, err, &perr, name)
		assert.Less(t, time.Since(start), 2*time.Second, name)
	}
}
