package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/cinetag/pkg/batch"
	"github.com/jmylchreest/cinetag/pkg/evaluate"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure extraction quality against annotations and a catalogue sample",
	Long: `Run extraction over hand-annotated descriptions and, optionally, a
random sample of a catalogue CSV, then report schema compliance, success and
retry rates, genre accuracy against catalogue labels and per-field agreement
with the annotations.

The report is printed as tables and written as JSON.

Examples:
  cinetag evaluate -a ground_truth.yaml
  cinetag evaluate -a ground_truth.yaml --dataset netflix.csv --sample 50 --seed 42`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	flags := evaluateCmd.Flags()
	flags.StringP("annotations", "a", "", "annotations file (YAML or JSON)")
	flags.String("dataset", "", "catalogue CSV to sample for genre accuracy")
	flags.Int("sample", 50, "number of catalogue rows to sample")
	flags.Uint64("seed", 42, "random seed for sampling")
	flags.Bool("strip-html", false, "strip HTML markup from catalogue descriptions")
	flags.IntP("concurrency", "c", batch.DefaultConcurrency, "extractions in flight at once")
	flags.Float64("rps", 0, "max extractions started per second (0=unlimited)")
	flags.String("report", evaluate.DefaultReportName, "JSON report path (empty to skip)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := cmd.Flags()
	annPath, _ := flags.GetString("annotations")
	dataset, _ := flags.GetString("dataset")
	sampleN, _ := flags.GetInt("sample")
	seed, _ := flags.GetUint64("seed")
	stripHTML, _ := flags.GetBool("strip-html")
	concurrency, _ := flags.GetInt("concurrency")
	rps, _ := flags.GetFloat64("rps")
	reportPath, _ := flags.GetString("report")

	if annPath == "" && dataset == "" {
		return fmt.Errorf("at least one of --annotations or --dataset is required")
	}

	var anns []evaluate.Annotation
	if annPath != "" {
		var err error
		anns, err = evaluate.LoadAnnotationsFile(annPath)
		if err != nil {
			logError("%v", err)
			return err
		}
	}

	var sampleInputs []batch.Input
	if dataset != "" {
		opts := batch.DefaultReadOptions()
		opts.StripHTML = stripHTML
		all, err := readInputs(dataset, opts)
		if err != nil {
			logError("%v", err)
			return err
		}
		sampleInputs = batch.Sample(all, sampleN, seed)
	}

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

	runner := batch.New(ext,
		batch.WithConcurrency(concurrency),
		batch.WithRateLimit(rps),
		batch.WithProgress(progressLogger()))

	var annotated, sampled []batch.Item
	if len(anns) > 0 {
		logInfo("Extracting %d annotated descriptions with %s", len(anns), s.Model)
		if annotated, err = runner.Run(ctx, evaluate.Inputs(anns)); err != nil {
			return err
		}
	}
	if len(sampleInputs) > 0 {
		logInfo("Extracting %d sampled catalogue descriptions with %s", len(sampleInputs), s.Model)
		if sampled, err = runner.Run(ctx, sampleInputs); err != nil {
			return err
		}
	}

	report := evaluate.Evaluate(annotated, anns, sampled)
	report.Model = s.Model

	if err := evaluate.Render(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if reportPath == "" {
		return nil
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := evaluate.WriteJSON(f, report); err != nil {
		return err
	}
	logInfo("Report written to %s", reportPath)
	return nil
}
