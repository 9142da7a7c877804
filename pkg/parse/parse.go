// Package parse recovers a JSON object from free-form model output.
//
// Models often wrap their answer in prose or markdown code fences. Parse
// locates the first top-level brace-delimited object in the text and decodes
// it. Whether the decoded object satisfies the content schema is not checked
// here; that is the job of package schema.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseError reports model output that contains no decodable JSON object.
type ParseError struct {
	// Raw is the complete model output that failed to parse.
	Raw string

	// Candidate is the brace-delimited text that was tried, if any.
	Candidate string

	// Reason is a short description suitable for a repair prompt.
	Reason string

	// Err is the underlying decoder error, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid JSON response: %s: %v", e.Reason, e.Err)
	}
	return "invalid JSON response: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser extracts JSON objects from model text.
type Parser struct {
	repair bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithRepair enables a lenient mode that runs the located candidate through
// jsonrepair when it does not decode as-is (single quotes, trailing commas,
// unterminated objects). Off by default.
func WithRepair(enabled bool) Option {
	return func(p *Parser) {
		p.repair = enabled
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes the first JSON object in raw using a strict parser.
func Parse(raw string) (map[string]any, error) {
	return New().Parse(raw)
}

// Parse decodes the first top-level JSON object found in raw that decodes.
// Objects nested inside a malformed candidate are never returned on their
// own. It never panics; any failure is returned as a *ParseError.
func (p *Parser) Parse(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ParseError{Raw: raw, Reason: "response is empty"}
	}

	var firstErr *ParseError
	for start := strings.IndexByte(text, '{'); start >= 0; {
		candidate, complete := balancedObject(text[start:])

		obj, err := decodeObject(candidate)
		if err == nil {
			return obj, nil
		}

		if p.repair {
			if obj, rerr := repairObject(candidate); rerr == nil {
				return obj, nil
			}
		}

		if firstErr == nil {
			reason := "object is not valid JSON"
			if !complete {
				reason = "JSON object is not terminated"
			}
			firstErr = &ParseError{Raw: raw, Candidate: candidate, Reason: reason, Err: err}
		}

		// Only top-level objects are candidates; skip past this one entirely.
		start += len(candidate)
		next := strings.IndexByte(text[start:], '{')
		if next < 0 {
			break
		}
		start += next
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &ParseError{Raw: raw, Reason: "no JSON object found in response"}
}

// balancedObject returns the prefix of s (which starts with '{') up to and
// including its matching closing brace. Braces inside JSON strings are
// ignored. If the object never closes, the whole of s is returned with
// complete set to false.
func balancedObject(s string) (candidate string, complete bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return s, false
}

var errNotObject = errors.New("top-level value is not an object")

func decodeObject(candidate string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func repairObject(candidate string) (map[string]any, error) {
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, err
	}
	return decodeObject(repaired)
}
