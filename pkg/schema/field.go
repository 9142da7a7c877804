// Package schema defines the content metadata contract every extraction must satisfy.
package schema

import (
	"fmt"
	"strings"
)

// FieldType represents the JSON shape of a schema field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeArray  FieldType = "array"
)

// Field describes a single top-level key of the contract.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	MinItems    int       `json:"min_items,omitempty" yaml:"min_items,omitempty"` // arrays only
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`           // strings only
	Examples    []string  `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// FieldError reports one field that failed the contract.
type FieldError struct {
	Field  string `json:"field" yaml:"field"`
	Reason string `json:"reason" yaml:"reason"`
}

// String renders the error the way it is quoted back to the model.
func (e FieldError) String() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// FieldErrors is the complete list of contract violations for one candidate.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	switch len(fe) {
	case 0:
		return "no field errors"
	case 1:
		return "schema validation failed: " + fe[0].String()
	}
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.String()
	}
	return fmt.Sprintf("schema validation failed with %d errors: %s", len(fe), strings.Join(parts, "; "))
}

// Fields returns the names of the fields that failed, in report order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for _, e := range fe {
		names = append(names, e.Field)
	}
	return names
}

// Has reports whether any error names the given field.
func (fe FieldErrors) Has(field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}
