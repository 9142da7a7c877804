// Package batch runs many extractions with bounded concurrency and an
// optional request rate limit, keeping results in input order.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/pkg/extractor"
	"github.com/jmylchreest/cinetag/pkg/llm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultConcurrency is the number of extractions in flight at once.
const DefaultConcurrency = 4

// Extractor runs a single extraction. *extractor.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, description string) (*extractor.Result, error)
}

// Item pairs an input with its outcome. Exactly one of Result and Err is set.
type Item struct {
	Input
	Result *extractor.Result
	Err    error
}

// OK reports whether the extraction succeeded.
func (it Item) OK() bool {
	return it.Err == nil && it.Result != nil
}

// ProgressType identifies a progress event.
type ProgressType int

const (
	ProgressStarted ProgressType = iota
	ProgressCompleted
	ProgressFailed
	ProgressFinished
)

// ProgressEvent reports batch progress. Events are delivered one at a time.
type ProgressEvent struct {
	Type      ProgressType
	Completed int
	Total     int
	Title     string
	Err       error
}

// ProgressFunc receives progress events.
type ProgressFunc func(ProgressEvent)

// Runner executes batches.
type Runner struct {
	extractor   Extractor
	concurrency int
	limiter     *rate.Limiter
	progress    ProgressFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of extractions in flight.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRateLimit caps extraction starts per second. Zero disables the limit.
// Repair attempts inside one extraction are not separately limited.
func WithRateLimit(rps float64) Option {
	return func(r *Runner) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			r.limiter = nil
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// New creates a Runner around e.
func New(e Extractor, opts ...Option) *Runner {
	r := &Runner{
		extractor:   e,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run extracts every input. Individual failures are recorded on their Item
// and do not stop the batch. The returned slice always has one Item per
// input in input order; the error is non-nil only when ctx ended early, in
// which case unfinished items carry the context error.
func (r *Runner) Run(ctx context.Context, inputs []Input) ([]Item, error) {
	items := make([]Item, len(inputs))
	for i, in := range inputs {
		items[i].Input = in
	}

	var (
		mu        sync.Mutex
		completed int
	)
	emit := func(ev ProgressEvent) {
		if r.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ev.Type == ProgressCompleted || ev.Type == ProgressFailed {
			completed++
		}
		ev.Completed = completed
		ev.Total = len(inputs)
		r.progress(ev)
	}

	start := time.Now()
	logger.Debug("batch starting", "inputs", len(inputs), "concurrency", r.concurrency)
	emit(ProgressEvent{Type: ProgressStarted})

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i := range inputs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			item := &items[i]
			item.Result, item.Err = r.extractOne(ctx, item.Description)

			if item.Err != nil {
				logger.Debug("batch item failed", "row", item.Row, "title", item.Title, "error", item.Err)
				emit(ProgressEvent{Type: ProgressFailed, Title: item.Title, Err: item.Err})
			} else {
				emit(ProgressEvent{Type: ProgressCompleted, Title: item.Title})
			}
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	if err != nil {
		for i := range items {
			if items[i].Result == nil && items[i].Err == nil {
				items[i].Err = llm.NewServiceError("batch", 0, err)
			}
		}
	}

	logger.Debug("batch finished", "inputs", len(inputs), "duration", time.Since(start))
	emit(ProgressEvent{Type: ProgressFinished})
	return items, err
}

func (r *Runner) extractOne(ctx context.Context, description string) (*extractor.Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, llm.NewServiceError("batch", 0, err)
		}
	}
	return r.extractor.Extract(ctx, description)
}

// Summary counts batch outcomes.
type Summary struct {
	Total         int           `json:"total"`
	Succeeded     int           `json:"succeeded"`
	FirstTry      int           `json:"first_try"`
	Repaired      int           `json:"repaired"`
	Failed        int           `json:"failed"`         // attempts exhausted
	ServiceErrors int           `json:"service_errors"` // model service failures
	ModelCalls    int           `json:"model_calls"`
	Duration      time.Duration `json:"duration"`
}

// Summarize counts the outcomes in items.
func Summarize(items []Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		if it.OK() {
			s.Succeeded++
			s.ModelCalls += it.Result.AttemptCount()
			s.Duration += it.Result.Duration
			if it.Result.Retries == 0 {
				s.FirstTry++
			} else {
				s.Repaired++
			}
			continue
		}

		var failure *extractor.ExtractionFailure
		if errors.As(it.Err, &failure) {
			s.Failed++
			s.ModelCalls += len(failure.Attempts)
			continue
		}
		s.ServiceErrors++
	}
	return s
}
