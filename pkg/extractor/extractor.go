// Package extractor turns a free-text show or movie description into
// validated content metadata by prompting a model, parsing its reply and
// repairing invalid output within a bounded number of attempts.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/pkg/llm"
	"github.com/jmylchreest/cinetag/pkg/parse"
	"github.com/jmylchreest/cinetag/pkg/schema"
)

// ModelClient is a single text completion round-trip. *llm.Client satisfies it.
// Implementations must honor the temperature and model call options.
type ModelClient interface {
	Complete(ctx context.Context, prompt string, opts ...llm.CallOption) (string, error)
}

// Result is a successful extraction.
type Result struct {
	// ID correlates log lines and observer events for this extraction.
	ID string `json:"id" yaml:"id"`

	Metadata schema.ContentMetadata `json:"metadata" yaml:"metadata"`

	// Attempts holds every round-trip, the last one being the success. It is
	// diagnostic only: it is never serialized, and callers needing the
	// history while the loop runs should register an Observer instead.
	Attempts []Attempt `json:"-" yaml:"-"`

	// Retries is the number of repair prompts that were needed.
	Retries int `json:"retries" yaml:"retries"`

	Model    string        `json:"model,omitempty" yaml:"model,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// AttemptCount returns the number of model calls made.
func (r *Result) AttemptCount() int {
	return len(r.Attempts)
}

// ExtractionFailure is returned when every allowed attempt produced output
// that could not be parsed or validated.
type ExtractionFailure struct {
	ID string

	// Raw is the model output of the final attempt.
	Raw string

	// Exactly one of ParseError and FieldErrors is set, describing the
	// final attempt.
	ParseError  *parse.ParseError
	FieldErrors schema.FieldErrors

	// Attempts is the diagnostic history of every round-trip.
	Attempts []Attempt
}

func (f *ExtractionFailure) Error() string {
	return fmt.Sprintf("extraction failed after %d attempts: %v", len(f.Attempts), f.Unwrap())
}

func (f *ExtractionFailure) Unwrap() error {
	if f.ParseError != nil {
		return f.ParseError
	}
	if len(f.FieldErrors) > 0 {
		return f.FieldErrors
	}
	return nil
}

// Extractor runs the extraction loop. It holds no per-call state and is safe
// for concurrent use when its ModelClient and Observer are.
type Extractor struct {
	client   ModelClient
	cfg      Config
	schema   *schema.Schema
	parser   *parse.Parser
	observer Observer
	newID    func() string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSchema overrides the default content schema.
func WithSchema(s *schema.Schema) Option {
	return func(e *Extractor) { e.schema = s }
}

// WithParser overrides the strict default response parser.
func WithParser(p *parse.Parser) Option {
	return func(e *Extractor) { e.parser = p }
}

// WithObserver registers an observer for transitions and attempts.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// WithIDFunc replaces the extraction ID generator.
func WithIDFunc(fn func() string) Option {
	return func(e *Extractor) { e.newID = fn }
}

// New creates an Extractor that calls client according to cfg.
func New(client ModelClient, cfg Config, opts ...Option) *Extractor {
	e := &Extractor{
		client: client,
		cfg:    cfg,
		schema: schema.Default(),
		parser: parse.New(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract is the pipeline entry point: it runs one extraction of description
// with a default-configured Extractor.
func Extract(ctx context.Context, description string, client ModelClient, cfg Config) (*Result, error) {
	return New(client, cfg).Extract(ctx, description)
}

// Extract runs the loop for description. On success it returns the validated
// metadata. A model call failure is returned at once as *llm.ServiceError.
// Exhausting all attempts returns *ExtractionFailure.
func (e *Extractor) Extract(ctx context.Context, description string) (*Result, error) {
	run := &run{
		e:     e,
		id:    e.newID(),
		state: StateDrafting,
		start: time.Now(),
	}

	maxCalls := e.cfg.maxCalls()
	callOpts := e.cfg.callOptions()
	logger.Debug("extraction starting",
		"extraction_id", run.id,
		"model", e.cfg.Model,
		"temperature", e.cfg.Temperature,
		"description_size", len(description),
		"max_calls", maxCalls)

	prompt := buildInitialPrompt(e.schema, description)

	for n := 1; ; n++ {
		run.attempt = n
		run.to(ctx, StateRequesting)

		a := Attempt{Number: n, Prompt: prompt}
		started := time.Now()
		raw, err := e.client.Complete(ctx, prompt, callOpts...)
		a.Duration = time.Since(started)
		a.Raw = raw

		if err != nil {
			se := llm.NewServiceError("model", 0, err)
			a.ServiceError = se
			run.finish(ctx, a, StateFailed)
			logger.Debug("extraction aborted by service error",
				"extraction_id", run.id,
				"attempt", n,
				"kind", se.Kind,
				"error", err)
			return nil, se
		}

		run.to(ctx, StateParsing)
		var next string
		obj, err := e.parser.Parse(raw)
		if err != nil {
			var perr *parse.ParseError
			if !errors.As(err, &perr) {
				perr = &parse.ParseError{Raw: raw, Reason: err.Error(), Err: err}
			}
			a.ParseError = perr
			logger.Debug("extraction parse failed", "extraction_id", run.id, "attempt", n, "reason", perr.Reason)
			next = buildParseRepairPrompt(e.schema, description, raw, perr)
		} else {
			run.to(ctx, StateValidating)
			md, ferrs := e.schema.Validate(obj)
			if len(ferrs) == 0 {
				run.finish(ctx, a, StateSucceeded)
				result := &Result{
					ID:       run.id,
					Metadata: md,
					Attempts: run.attempts,
					Retries:  n - 1,
					Model:    e.cfg.Model,
					Duration: time.Since(run.start),
				}
				logger.Debug("extraction succeeded",
					"extraction_id", run.id,
					"attempts", n,
					"duration", result.Duration)
				return result, nil
			}
			a.FieldErrors = ferrs
			logger.Debug("extraction validation failed",
				"extraction_id", run.id,
				"attempt", n,
				"fields", ferrs.Fields())
			next = buildRepairPrompt(e.schema, description, raw, ferrs)
		}

		if n >= maxCalls {
			run.finish(ctx, a, StateFailed)
			failure := &ExtractionFailure{
				ID:          run.id,
				Raw:         raw,
				ParseError:  a.ParseError,
				FieldErrors: a.FieldErrors,
				Attempts:    run.attempts,
			}
			logger.Debug("extraction failed", "extraction_id", run.id, "attempts", n, "error", failure.Unwrap())
			return nil, failure
		}

		run.finish(ctx, a, StateRepairing)
		run.to(ctx, StateDrafting)
		prompt = next
	}
}

// run is the per-call state of one extraction.
type run struct {
	e        *Extractor
	id       string
	state    State
	attempt  int
	attempts []Attempt
	start    time.Time
}

func (r *run) to(ctx context.Context, next State) {
	logger.Debug("extraction transition",
		"extraction_id", r.id,
		"attempt", r.attempt,
		"from", r.state.String(),
		"to", next.String())

	if r.e.observer != nil {
		r.e.observer.OnTransition(ctx, Transition{
			ExtractionID: r.id,
			Attempt:      r.attempt,
			From:         r.state,
			To:           next,
			At:           time.Now(),
		})
	}
	r.state = next
}

// finish records a and moves to the state it ended in.
func (r *run) finish(ctx context.Context, a Attempt, outcome State) {
	a.Outcome = outcome
	r.attempts = append(r.attempts, a)
	if r.e.observer != nil {
		r.e.observer.OnAttempt(ctx, r.id, a)
	}
	r.to(ctx, outcome)
}
