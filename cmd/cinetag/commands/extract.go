package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/internal/output"
	"github.com/jmylchreest/cinetag/pkg/extractor"
	"github.com/jmylchreest/cinetag/pkg/llm"
)

var extractCmd = &cobra.Command{
	Use:   "extract [description]",
	Short: "Extract metadata from a single description",
	Long: `Extract content metadata from one description.

The description is taken from the arguments, or read from stdin when no
arguments are given. When stdin is a terminal, an interactive prompt reads
one description per line until EOF (Ctrl-D).

Examples:
  cinetag extract "Two rival magicians feud in Victorian London."
  echo "A lonely robot finds love." | cinetag extract --format yaml
  cinetag extract            # interactive`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	flags := extractCmd.Flags()
	flags.StringP("title", "t", "", "title to attach to the record")
	flags.String("format", "json", "output format: json, jsonl, yaml, csv")
	flags.Bool("show-attempts", false, "log every prompt and raw model response")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	title, _ := cmd.Flags().GetString("title")
	formatStr, _ := cmd.Flags().GetString("format")
	showAttempts, _ := cmd.Flags().GetBool("show-attempts")

	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	s, err := loadSettings()
	if err != nil {
		logError("%v", err)
		return err
	}

	var opts []extractor.Option
	if showAttempts {
		opts = append(opts, extractor.WithObserver(extractor.ObserverFuncs{
			Attempt: func(_ context.Context, id string, a extractor.Attempt) {
				logger.Info("attempt",
					"extraction_id", id,
					"number", a.Number,
					"outcome", a.Outcome.String(),
					"prompt", a.Prompt,
					"raw", a.Raw,
					"error", a.Err())
			},
		}))
	}

	ext, err := newExtractor(s, opts...)
	if err != nil {
		logError("%v", err)
		return err
	}

	w, err := output.NewWriter(cmd.OutOrStdout(), format)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if len(args) > 0 {
		return extractOne(ctx, ext, w, title, strings.Join(args, " "))
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return interactive(ctx, ext, w, f, cmd.ErrOrStderr())
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return extractOne(ctx, ext, w, title, strings.TrimSpace(string(data)))
}

// extractOne runs a single extraction and writes its record. A failed
// extraction is still written, and also reported as the command error.
func extractOne(ctx context.Context, ext *extractor.Extractor, w output.Writer, title, description string) error {
	res, err := ext.Extract(ctx, description)
	rec := output.NewRecord(title, description, res, err)

	if werr := w.Write(rec); werr != nil {
		return werr
	}
	if werr := w.Flush(); werr != nil {
		return werr
	}

	if err != nil {
		reportFailure(err)
		return err
	}
	if res.Retries > 0 {
		logInfo("succeeded after %d repair attempt(s)", res.Retries)
	}
	return nil
}

func interactive(ctx context.Context, ext *extractor.Extractor, w output.Writer, in io.Reader, prompt io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(prompt, "description> ")
		if !scanner.Scan() {
			fmt.Fprintln(prompt)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		err := extractOne(ctx, ext, w, "", line)
		var se *llm.ServiceError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// reportFailure logs a precise diagnostic for a failed extraction.
func reportFailure(err error) {
	var failure *extractor.ExtractionFailure
	if errors.As(err, &failure) {
		logger.Warn("extraction failed",
			"extraction_id", failure.ID,
			"attempts", len(failure.Attempts),
			"error", failure.Unwrap())
		logger.Debug("last model output", "raw", failure.Raw)
		return
	}

	var se *llm.ServiceError
	if errors.As(err, &se) {
		logger.Warn("model service error",
			"provider", se.Provider,
			"kind", se.Kind,
			"status", se.StatusCode,
			"temporary", se.Temporary(),
			"error", se.Err)
		return
	}

	logger.Warn("extraction error", "error", err)
}
