package evaluate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/jmylchreest/cinetag/pkg/batch"
)

// DefaultReportName is the file name the CLI writes reports to.
const DefaultReportName = "evaluation_report.json"

// Metrics are the headline numbers of an evaluation.
type Metrics struct {
	SchemaComplianceFirstTry float64     `json:"schema_compliance_first_try"`
	OverallSuccessRate       float64     `json:"overall_success_rate"`
	RetryRate                float64     `json:"retry_rate"`
	GenreAccuracy            float64     `json:"genre_accuracy"`
	FieldAgreement           FieldScores `json:"manual_accuracy"`
}

// Report is the complete result of an evaluation run.
type Report struct {
	Timestamp    time.Time     `json:"timestamp"`
	Model        string        `json:"model,omitempty"`
	TotalSamples int           `json:"total_samples"`
	Metrics      Metrics       `json:"metrics"`
	Summary      batch.Summary `json:"summary"`
	Genres       GenreAccuracy `json:"genre_match"`
	Agreement    Agreement     `json:"agreement"`
	FailureCount int           `json:"failure_count"`
	Failures     []Failure     `json:"failures"`
}

// Evaluate builds a report from the annotated run (scored against anns)
// and an optional catalogue sample run (scored against its genre labels).
// Rates are computed over both runs together.
func Evaluate(annotated []batch.Item, anns []Annotation, sample []batch.Item) Report {
	all := make([]batch.Item, 0, len(annotated)+len(sample))
	all = append(all, annotated...)
	all = append(all, sample...)

	genres := GenreMatch(sample)
	agreement := FieldAgreement(annotated, anns)
	failures := Failures(all)
	if failures == nil {
		failures = []Failure{}
	}

	return Report{
		Timestamp:    time.Now().UTC(),
		TotalSamples: len(all),
		Metrics: Metrics{
			SchemaComplianceFirstTry: ComplianceRate(all),
			OverallSuccessRate:       SuccessRate(all),
			RetryRate:                RetryRate(all),
			GenreAccuracy:            genres.Accuracy,
			FieldAgreement:           agreement.Average,
		},
		Summary:      batch.Summarize(all),
		Genres:       genres,
		Agreement:    agreement,
		FailureCount: len(failures),
		Failures:     failures,
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Render writes human-readable tables for r.
func Render(w io.Writer, r Report) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Evaluated %s descriptions with %s model calls",
		humanize.Comma(int64(r.TotalSamples)),
		humanize.Comma(int64(r.Summary.ModelCalls)))
	if r.Model != "" {
		fmt.Fprintf(&sb, " (%s)", r.Model)
	}
	sb.WriteString("\n")

	sb.WriteString(renderTable([]string{"Metric", "Value"}, true, [][]string{
		{"Schema compliance (1st try)", pct(r.Metrics.SchemaComplianceFirstTry)},
		{"Overall success rate", pct(r.Metrics.OverallSuccessRate)},
		{"Retry rate", pct(r.Metrics.RetryRate)},
		{"Genre match (vs dataset)", fmt.Sprintf("%s (%d/%d)", pct(r.Genres.Accuracy), r.Genres.Matches, r.Genres.Total)},
	}))
	sb.WriteString("\n")

	if r.Agreement.Compared > 0 {
		a := r.Agreement.Average
		fmt.Fprintf(&sb, "Agreement with %s annotations\n", humanize.Comma(int64(r.Agreement.Compared)))
		sb.WriteString(renderTable([]string{"Field", "Score"}, true, [][]string{
			{"genres", pct(a.Genres)},
			{"themes", pct(a.Themes)},
			{"mood", pct(a.Mood)},
			{"audience", pct(a.Audience)},
			{"warnings", pct(a.Warnings)},
			{"overall", pct(a.Overall)},
		}))
		sb.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(&sb, "Failures (%d)\n", len(r.Failures))
		rows := make([][]string, 0, len(r.Failures))
		for _, f := range r.Failures {
			rows = append(rows, []string{f.Title, text.Snip(f.Error, 80, "...")})
		}
		sb.WriteString(renderTable([]string{"Title", "Error"}, false, rows))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func renderTable(headers []string, numeric bool, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	if numeric {
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		})
	}
	return tw.Render() + "\n"
}

func pct(v float64) string {
	return humanize.FtoaWithDigits(v, 1) + "%"
}
