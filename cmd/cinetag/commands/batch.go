package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/internal/output"
	"github.com/jmylchreest/cinetag/pkg/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract metadata for every row of a CSV file",
	Long: `Read descriptions from a CSV file with a header row and extract
metadata for each, writing one record per row in input order.

Failed rows are written with status "failed" (attempts exhausted) or
"error" (model service failure) and never carry made-up metadata.

Examples:
  cinetag batch -i netflix.csv --limit 20
  cinetag batch -i shows.csv --title-column name --description-column synopsis \
      --strip-html -o tagged.jsonl --format jsonl -c 8 --rps 2`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	flags := batchCmd.Flags()
	flags.StringP("input", "i", "", "input CSV file (required)")
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml, csv")
	flags.String("title-column", batch.DefaultTitleColumn, "CSV column holding the title")
	flags.String("description-column", batch.DefaultDescriptionColumn, "CSV column holding the description")
	flags.String("genre-column", batch.DefaultGenreColumn, "CSV column holding comma-separated genre labels")
	flags.Bool("strip-html", false, "strip HTML markup from descriptions")
	flags.Int("limit", 0, "read at most this many rows (0=all)")
	flags.Int("sample", 0, "extract a random sample of this many rows (0=all)")
	flags.Uint64("seed", 42, "random seed for --sample")
	flags.IntP("concurrency", "c", batch.DefaultConcurrency, "extractions in flight at once")
	flags.Float64("rps", 0, "max extractions started per second (0=unlimited)")

	_ = batchCmd.MarkFlagRequired("input")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := cmd.Flags()
	inputPath, _ := flags.GetString("input")
	outputPath, _ := flags.GetString("output")
	formatStr, _ := flags.GetString("format")
	stripHTML, _ := flags.GetBool("strip-html")
	limit, _ := flags.GetInt("limit")
	concurrency, _ := flags.GetInt("concurrency")
	rps, _ := flags.GetFloat64("rps")
	titleCol, _ := flags.GetString("title-column")
	descCol, _ := flags.GetString("description-column")
	genreCol, _ := flags.GetString("genre-column")
	sampleN, _ := flags.GetInt("sample")
	seed, _ := flags.GetUint64("seed")

	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	inputs, err := readInputs(inputPath, batch.ReadOptions{
		TitleColumn:       titleCol,
		DescriptionColumn: descCol,
		GenreColumn:       genreCol,
		StripHTML:         stripHTML,
		Limit:             limit,
	})
	if err != nil {
		logError("%v", err)
		return err
	}
	inputs = batch.Sample(inputs, sampleN, seed)

	s, err := loadSettings()
	if err != nil {
		logError("%v", err)
		return err
	}
	ext, err := newExtractor(s)
	if err != nil {
		logError("%v", err)
		return err
	}

	logInfo("Extracting %s descriptions with %s (%s)", humanize.Comma(int64(len(inputs))), s.Model, s.Provider)

	start := time.Now()
	runner := batch.New(ext,
		batch.WithConcurrency(concurrency),
		batch.WithRateLimit(rps),
		batch.WithProgress(progressLogger()))
	items, runErr := runner.Run(ctx, inputs)

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	w, err := output.NewWriter(out, format)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := w.Write(output.NewRecord(it.Title, it.Description, it.Result, it.Err)); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	sum := batch.Summarize(items)
	logInfo("Done in %s: %s succeeded (%s first try), %s failed, %s service errors, %s model calls",
		time.Since(start).Round(time.Millisecond),
		humanize.Comma(int64(sum.Succeeded)),
		humanize.Comma(int64(sum.FirstTry)),
		humanize.Comma(int64(sum.Failed)),
		humanize.Comma(int64(sum.ServiceErrors)),
		humanize.Comma(int64(sum.ModelCalls)))

	return runErr
}

func readInputs(path string, opts batch.ReadOptions) ([]batch.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	inputs, err := batch.ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inputs, nil
}

// progressLogger reports batch progress on stderr.
func progressLogger() batch.ProgressFunc {
	return func(ev batch.ProgressEvent) {
		switch ev.Type {
		case batch.ProgressCompleted:
			logInfo("[%d/%d] %s", ev.Completed, ev.Total, ev.Title)
		case batch.ProgressFailed:
			logInfo("[%d/%d] %s: FAILED", ev.Completed, ev.Total, ev.Title)
			logger.Debug("batch item error", "title", ev.Title, "error", ev.Err)
		}
	}
}
