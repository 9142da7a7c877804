package extractor

import (
	"context"
	"time"

	"github.com/jmylchreest/cinetag/pkg/parse"
	"github.com/jmylchreest/cinetag/pkg/schema"
)

// State is a step of the extraction loop.
type State int

const (
	StateDrafting State = iota
	StateRequesting
	StateParsing
	StateValidating
	StateRepairing
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateDrafting:   "drafting",
	StateRequesting: "requesting",
	StateParsing:    "parsing",
	StateValidating: "validating",
	StateRepairing:  "repairing",
	StateSucceeded:  "succeeded",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Attempt records one model round-trip and what came of it.
type Attempt struct {
	// Number is 1 for the initial request and increments per repair.
	Number int `json:"number" yaml:"number"`

	// Prompt sent to the model.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Raw model output. Empty when the request itself failed.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`

	// ParseError is set when Raw held no decodable object.
	ParseError *parse.ParseError `json:"-" yaml:"-"`

	// FieldErrors is set when the decoded object failed field checks.
	FieldErrors schema.FieldErrors `json:"field_errors,omitempty" yaml:"field_errors,omitempty"`

	// ServiceError is set when the model call failed.
	ServiceError error `json:"-" yaml:"-"`

	// Outcome is the state the attempt ended in: Succeeded, Repairing or Failed.
	Outcome State `json:"-" yaml:"-"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Err returns whichever failure ended the attempt, or nil.
func (a Attempt) Err() error {
	switch {
	case a.ServiceError != nil:
		return a.ServiceError
	case a.ParseError != nil:
		return a.ParseError
	case len(a.FieldErrors) > 0:
		return a.FieldErrors
	}
	return nil
}

// Transition is a single state change within one extraction.
type Transition struct {
	ExtractionID string
	Attempt      int
	From         State
	To           State
	At           time.Time
}

// Observer receives state transitions and finished attempts.
// Implementations must be safe for concurrent use when one Extractor
// serves concurrent extractions, and should not block.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
	OnAttempt(ctx context.Context, extractionID string, a Attempt)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Transition func(ctx context.Context, t Transition)
	Attempt    func(ctx context.Context, extractionID string, a Attempt)
}

func (o ObserverFuncs) OnTransition(ctx context.Context, t Transition) {
	if o.Transition != nil {
		o.Transition(ctx, t)
	}
}

func (o ObserverFuncs) OnAttempt(ctx context.Context, extractionID string, a Attempt) {
	if o.Attempt != nil {
		o.Attempt(ctx, extractionID, a)
	}
}
