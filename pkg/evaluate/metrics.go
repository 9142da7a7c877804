// Package evaluate measures extraction quality: how often output complies
// with the schema, and how closely it agrees with hand-labeled ground truth
// and with catalogue genre labels.
package evaluate

import (
	"errors"
	"strings"

	"github.com/jmylchreest/cinetag/pkg/batch"
	"github.com/jmylchreest/cinetag/pkg/extractor"
)

// ComplianceRate is the percentage of items that succeeded on the first
// model call.
func ComplianceRate(items []batch.Item) float64 {
	return percent(items, func(it batch.Item) bool { return it.OK() && it.Result.Retries == 0 })
}

// SuccessRate is the percentage of items that succeeded at all.
func SuccessRate(items []batch.Item) float64 {
	return percent(items, batch.Item.OK)
}

// RetryRate is the percentage of items that succeeded only after repair.
func RetryRate(items []batch.Item) float64 {
	return percent(items, func(it batch.Item) bool { return it.OK() && it.Result.Retries > 0 })
}

func percent(items []batch.Item, pred func(batch.Item) bool) float64 {
	if len(items) == 0 {
		return 0
	}
	n := 0
	for _, it := range items {
		if pred(it) {
			n++
		}
	}
	return float64(n) / float64(len(items)) * 100
}

// GenreDetail compares one item's extracted genres with its catalogue labels.
type GenreDetail struct {
	Title     string   `json:"title"`
	Extracted []string `json:"extracted"`
	Actual    []string `json:"actual"`
	Match     bool     `json:"match"`
}

// GenreAccuracy summarises genre agreement with catalogue labels.
type GenreAccuracy struct {
	Accuracy float64       `json:"accuracy"`
	Matches  int           `json:"matches"`
	Total    int           `json:"total"`
	Details  []GenreDetail `json:"details,omitempty"`
}

// GenreMatch checks, for each successful item with catalogue labels, whether
// any extracted genre appears in any label ("drama" matches "TV Dramas").
func GenreMatch(items []batch.Item) GenreAccuracy {
	var acc GenreAccuracy
	for _, it := range items {
		if !it.OK() || len(it.Genres) == 0 {
			continue
		}

		extracted := lower(it.Result.Metadata.Genres)
		actual := lower(it.Genres)
		match := false
	outer:
		for _, g := range extracted {
			for _, label := range actual {
				if g != "" && strings.Contains(label, g) {
					match = true
					break outer
				}
			}
		}

		acc.Total++
		if match {
			acc.Matches++
		}
		acc.Details = append(acc.Details, GenreDetail{
			Title:     it.Title,
			Extracted: extracted,
			Actual:    actual,
			Match:     match,
		})
	}
	if acc.Total > 0 {
		acc.Accuracy = float64(acc.Matches) / float64(acc.Total) * 100
	}
	return acc
}

// FieldScores holds one score per contract field, each in [0, 100] when
// averaged or [0, 1] per item.
type FieldScores struct {
	Genres   float64 `json:"genres"`
	Themes   float64 `json:"themes"`
	Mood     float64 `json:"mood"`
	Audience float64 `json:"audience"`
	Warnings float64 `json:"warnings"`
	Overall  float64 `json:"overall"`
}

func (s FieldScores) withOverall() FieldScores {
	s.Overall = (s.Genres + s.Themes + s.Mood + s.Audience + s.Warnings) / 5
	return s
}

// AgreementDetail is the per-annotation comparison.
type AgreementDetail struct {
	Title  string      `json:"title"`
	Scores FieldScores `json:"scores"`
}

// Agreement summarises field agreement with hand-labeled annotations.
type Agreement struct {
	Compared int               `json:"compared"`
	Average  FieldScores       `json:"average"`
	Details  []AgreementDetail `json:"details,omitempty"`
}

// FieldAgreement scores successful items against the annotation with the
// same title. List fields use case-insensitive Jaccard similarity (two empty
// lists agree fully); audience must match exactly.
func FieldAgreement(items []batch.Item, anns []Annotation) Agreement {
	byTitle := make(map[string]batch.Item, len(items))
	for _, it := range items {
		if it.OK() {
			if _, dup := byTitle[it.Title]; !dup {
				byTitle[it.Title] = it
			}
		}
	}

	var ag Agreement
	var sum FieldScores
	for _, a := range anns {
		it, ok := byTitle[a.Title]
		if !ok {
			continue
		}
		got, want := it.Result.Metadata, a.Expected

		s := FieldScores{
			Genres:   Jaccard(got.Genres, want.Genres),
			Themes:   Jaccard(got.Themes, want.Themes),
			Mood:     Jaccard(got.Mood, want.Mood),
			Warnings: Jaccard(got.Warnings, want.Warnings),
		}
		if strings.EqualFold(string(got.Audience), string(want.Audience)) {
			s.Audience = 1
		}
		s = s.withOverall()

		sum.Genres += s.Genres
		sum.Themes += s.Themes
		sum.Mood += s.Mood
		sum.Audience += s.Audience
		sum.Warnings += s.Warnings
		ag.Compared++
		ag.Details = append(ag.Details, AgreementDetail{Title: a.Title, Scores: s})
	}

	if ag.Compared > 0 {
		n := float64(ag.Compared)
		ag.Average = FieldScores{
			Genres:   sum.Genres / n * 100,
			Themes:   sum.Themes / n * 100,
			Mood:     sum.Mood / n * 100,
			Audience: sum.Audience / n * 100,
			Warnings: sum.Warnings / n * 100,
		}.withOverall()
	}
	return ag
}

// Jaccard returns |a ∩ b| / |a ∪ b| over lowercased values, or 1 when both
// are empty.
func Jaccard(a, b []string) float64 {
	as := set(a)
	bs := set(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}

	inter := 0
	for v := range as {
		if bs[v] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func set(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range lower(vals) {
		if v != "" {
			m[v] = true
		}
	}
	return m
}

func lower(vals []string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// Failure describes an item that produced no metadata.
type Failure struct {
	Title      string   `json:"title"`
	Error      string   `json:"error"`
	Attempts   int      `json:"attempts,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	LastOutput string   `json:"last_output,omitempty"`
}

// Failures lists the unsuccessful items with enough detail to diagnose them.
func Failures(items []batch.Item) []Failure {
	var out []Failure
	for _, it := range items {
		if it.OK() {
			continue
		}
		f := Failure{Title: it.Title}
		if it.Err != nil {
			f.Error = it.Err.Error()
		}
		var failure *extractor.ExtractionFailure
		if errors.As(it.Err, &failure) {
			f.Attempts = len(failure.Attempts)
			f.Fields = failure.FieldErrors.Fields()
			f.LastOutput = failure.Raw
		}
		out = append(out, f)
	}
	return out
}
