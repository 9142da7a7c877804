package extractor_test

import (
	"strings"
	"testing"

	"github.com/jmylchreest/cinetag/pkg/extractor"
	"github.com/jmylchreest/cinetag/pkg/parse"
	"github.com/jmylchreest/cinetag/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestBuildInitialPrompt(t *testing.T) {
	t.Parallel()

	p := extractor.BuildInitialPrompt("Two rival magicians feud in Victorian London.")

	for _, want := range []string{
		"genres", "themes", "mood", "audience", "warnings",
		"kids, family, teens, adults",
		"Return ONLY one valid JSON object",
		`"properties"`,
		"EXAMPLE:",
		"Description: Two rival magicians feud in Victorian London.\n",
	} {
		assert.Contains(t, p, want)
	}
	assert.True(t, strings.HasSuffix(p, "Two rival magicians feud in Victorian London.\n"))
}

func TestBuildInitialPrompt_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, extractor.BuildInitialPrompt("x"), extractor.BuildInitialPrompt("x"))
}

func TestBuildRepairPrompt(t *testing.T) {
	t.Parallel()

	errs := schema.FieldErrors{
		{Field: "audience", Reason: `must be one of [kids, family, teens, adults], got "grownups"`},
		{Field: "genres", Reason: "required field is missing"},
	}
	prev := `{"audience": "grownups"}`

	p := extractor.BuildRepairPrompt("desc", prev, errs)

	assert.Contains(t, p, prev)
	assert.Contains(t, p, `- field "audience": must be one of [kids, family, teens, adults], got "grownups"`)
	assert.Contains(t, p, `- field "genres": required field is missing`)
	assert.Contains(t, p, "Correct exactly those fields")
	assert.Contains(t, p, "Description: desc\n")
}

func TestBuildParseRepairPrompt(t *testing.T) {
	t.Parallel()

	perr := &parse.ParseError{Raw: "Sorry!", Reason: "no JSON object found in response"}

	p := extractor.BuildParseRepairPrompt("desc", "Sorry!", perr)

	assert.Contains(t, p, "not valid JSON")
	assert.Contains(t, p, "no JSON object found in response")
	assert.Contains(t, p, "Sorry!")
	assert.Contains(t, p, "ONLY the JSON object")
	assert.Contains(t, p, "Description: desc\n")
}
