package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/jmylchreest/cinetag/internal/logger"
)

// Default column names, matching the public Netflix catalogue export.
const (
	DefaultTitleColumn       = "Title"
	DefaultDescriptionColumn = "Description"
	DefaultGenreColumn       = "Type"
)

// Input is one description to extract, with the catalogue data around it.
type Input struct {
	// Row is the 1-based data row in the source file (header excluded).
	Row         int      `json:"row" yaml:"row"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Genres      []string `json:"genres,omitempty" yaml:"genres,omitempty"`
}

// ReadOptions controls how a CSV file is mapped to inputs.
type ReadOptions struct {
	TitleColumn       string
	DescriptionColumn string
	// GenreColumn is optional; when present its comma-separated labels
	// are kept on Input.Genres for evaluation.
	GenreColumn string
	StripHTML   bool
	// Limit stops reading after this many inputs. Zero reads everything.
	Limit int
}

// DefaultReadOptions returns options for the default column layout.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		TitleColumn:       DefaultTitleColumn,
		DescriptionColumn: DefaultDescriptionColumn,
		GenreColumn:       DefaultGenreColumn,
	}
}

// ReadCSV reads inputs from a CSV file with a header row. Column names are
// matched case-insensitively. Rows with a blank description are skipped.
func ReadCSV(r io.Reader, opts ReadOptions) ([]Input, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	column := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := cols[strings.ToLower(name)]; ok {
			return i
		}
		return -1
	}

	descCol := column(opts.DescriptionColumn)
	if descCol < 0 {
		return nil, fmt.Errorf("csv has no %q column (have %s)", opts.DescriptionColumn, strings.Join(header, ", "))
	}
	titleCol := column(opts.TitleColumn)
	genreCol := column(opts.GenreColumn)

	var inputs []Input
	skipped := 0
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", row, err)
		}

		desc := cell(rec, descCol)
		if opts.StripHTML {
			desc = StripHTML(desc)
		}
		if strings.TrimSpace(desc) == "" {
			skipped++
			continue
		}

		in := Input{
			Row:         row,
			Title:       cell(rec, titleCol),
			Description: desc,
		}
		if g := cell(rec, genreCol); g != "" {
			in.Genres = splitLabels(g)
		}
		inputs = append(inputs, in)

		if opts.Limit > 0 && len(inputs) >= opts.Limit {
			break
		}
	}

	logger.Debug("csv read", "inputs", len(inputs), "skipped", skipped)
	return inputs, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func splitLabels(s string) []string {
	parts := strings.Split(s, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// Sample returns n inputs chosen pseudo-randomly with a fixed seed, so the
// same file and seed always give the same sample. Order of the source is kept.
func Sample(inputs []Input, n int, seed uint64) []Input {
	if n <= 0 || n >= len(inputs) {
		return inputs
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	picked := rng.Perm(len(inputs))[:n]

	keep := make([]bool, len(inputs))
	for _, i := range picked {
		keep[i] = true
	}

	out := make([]Input, 0, n)
	for i, in := range inputs {
		if keep[i] {
			out = append(out, in)
		}
	}
	return out
}
