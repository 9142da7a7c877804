package output

import (
	"errors"

	"github.com/jmylchreest/cinetag/pkg/extractor"
	"github.com/jmylchreest/cinetag/pkg/llm"
)

// Status values for Record.Status.
const (
	StatusOK     = "ok"
	StatusFailed = "failed" // attempts exhausted
	StatusError  = "error"  // model service failure
)

// Record is the flat, serializable outcome of one extraction.
// A failed extraction keeps its metadata fields empty and says why in Error.
type Record struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Status      string   `json:"status" yaml:"status"`
	Genres      []string `json:"genres,omitempty" yaml:"genres,omitempty"`
	Themes      []string `json:"themes,omitempty" yaml:"themes,omitempty"`
	Mood        []string `json:"mood,omitempty" yaml:"mood,omitempty"`
	Audience    string   `json:"audience,omitempty" yaml:"audience,omitempty"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Attempts    int      `json:"attempts" yaml:"attempts"`
	Retries     int      `json:"retries" yaml:"retries"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorFields []string `json:"error_fields,omitempty" yaml:"error_fields,omitempty"`
	RawOutput   string   `json:"raw_output,omitempty" yaml:"raw_output,omitempty"`
}

// NewRecord builds a Record from the outcome of extractor.Extract.
func NewRecord(title, description string, res *extractor.Result, err error) Record {
	rec := Record{
		Title:       title,
		Description: description,
	}

	if err == nil && res != nil {
		md := res.Metadata
		rec.ID = res.ID
		rec.Status = StatusOK
		rec.Genres = md.Genres
		rec.Themes = md.Themes
		rec.Mood = md.Mood
		rec.Audience = string(md.Audience)
		rec.Warnings = md.Warnings
		rec.Attempts = res.AttemptCount()
		rec.Retries = res.Retries
		rec.Model = res.Model
		return rec
	}

	rec.Status = StatusError
	if err != nil {
		rec.Error = err.Error()
	}

	var failure *extractor.ExtractionFailure
	if errors.As(err, &failure) {
		rec.ID = failure.ID
		rec.Status = StatusFailed
		rec.Attempts = len(failure.Attempts)
		rec.Retries = rec.Attempts - 1
		rec.RawOutput = failure.Raw
		rec.ErrorFields = failure.FieldErrors.Fields()
		return rec
	}

	var se *llm.ServiceError
	if errors.As(err, &se) {
		rec.Attempts = 1
	}
	return rec
}

// OK reports whether the record holds validated metadata.
func (r Record) OK() bool {
	return r.Status == StatusOK
}
