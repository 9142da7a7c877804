package extractor

import (
	"strings"

	"github.com/jmylchreest/cinetag/pkg/parse"
	"github.com/jmylchreest/cinetag/pkg/schema"
)

const exampleDescription = `A brilliant group of students become card-counting experts with the intent of swindling millions out of Las Vegas casinos by playing blackjack.`

const exampleOutput = `{"genres": ["Drama", "Thriller", "Crime"], "themes": ["ambition", "deception", "risk"], "mood": ["thrilling", "tense"], "audience": "adults", "warnings": ["gambling"]}`

const rules = `IMPORTANT RULES:
- Return ONLY one valid JSON object. No markdown, no backticks, no explanation.
- Use exactly the keys genres, themes, mood, audience, warnings. Every key must be present.
- genres, themes, mood and warnings are lists of plain strings. genres must not be empty.
- audience must be exactly one of: kids, family, teens, adults.
- Use an empty list when nothing applies. Never use null.
- Base your extraction ONLY on what the description states or strongly implies.`

// BuildInitialPrompt creates the first prompt for a description.
func BuildInitialPrompt(description string) string {
	return buildInitialPrompt(schema.Default(), description)
}

func buildInitialPrompt(s *schema.Schema, description string) string {
	var b strings.Builder

	b.WriteString("Extract content metadata from the following show or movie description.\n\n")
	b.WriteString(s.ToPromptDescription())
	b.WriteString("\n")
	b.WriteString(rules)
	b.WriteString("\n\nEXAMPLE:\nDescription: \"")
	b.WriteString(exampleDescription)
	b.WriteString("\"\nOutput:\n")
	b.WriteString(exampleOutput)
	b.WriteString("\n\nThe response must conform to this JSON schema:\n")
	b.WriteString(s.JSONSchemaString())
	writeDescription(&b, description)

	return b.String()
}

// BuildRepairPrompt creates a follow-up prompt after the previous output
// decoded as JSON but failed field checks. Every error is listed verbatim.
func BuildRepairPrompt(description, previousRaw string, errs schema.FieldErrors) string {
	return buildRepairPrompt(schema.Default(), description, previousRaw, errs)
}

func buildRepairPrompt(s *schema.Schema, description, previousRaw string, errs schema.FieldErrors) string {
	var b strings.Builder

	b.WriteString("Your previous response did not match the required schema.\n\n")
	writePrevious(&b, previousRaw)

	b.WriteString("\nThese fields must be corrected:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.String())
		b.WriteString("\n")
	}

	b.WriteString("\nCorrect exactly those fields and return the complete JSON object again.\n\n")
	b.WriteString(s.ToPromptDescription())
	b.WriteString("\n")
	b.WriteString(rules)
	writeDescription(&b, description)

	return b.String()
}

// BuildParseRepairPrompt creates a follow-up prompt after the previous
// output contained no decodable JSON object.
func BuildParseRepairPrompt(description, previousRaw string, perr *parse.ParseError) string {
	return buildParseRepairPrompt(schema.Default(), description, previousRaw, perr)
}

func buildParseRepairPrompt(s *schema.Schema, description, previousRaw string, perr *parse.ParseError) string {
	var b strings.Builder

	b.WriteString("Your previous response was not valid JSON.\n")
	if perr != nil {
		b.WriteString("Error: ")
		b.WriteString(perr.Error())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	writePrevious(&b, previousRaw)

	b.WriteString("\nRespond with ONLY the JSON object, no other text.\n\n")
	b.WriteString(s.ToPromptDescription())
	b.WriteString("\n")
	b.WriteString(rules)
	writeDescription(&b, description)

	return b.String()
}

func writePrevious(b *strings.Builder, raw string) {
	b.WriteString("Previous response:\n<<<\n")
	b.WriteString(raw)
	b.WriteString("\n>>>\n")
}

func writeDescription(b *strings.Builder, description string) {
	b.WriteString("\n\nNow extract metadata from:\nDescription: ")
	b.WriteString(description)
	b.WriteString("\n")
}
