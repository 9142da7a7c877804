package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Audience is the primary intended audience of a title.
type Audience string

const (
	AudienceKids   Audience = "kids"
	AudienceFamily Audience = "family"
	AudienceTeens  Audience = "teens"
	AudienceAdults Audience = "adults"
)

// Audiences lists the closed audience enumeration in prompt order.
var Audiences = []Audience{AudienceKids, AudienceFamily, AudienceTeens, AudienceAdults}

// Valid reports whether a is one of the enumerated audiences.
func (a Audience) Valid() bool {
	for _, v := range Audiences {
		if a == v {
			return true
		}
	}
	return false
}

// ContentMetadata is a validated extraction result.
// Values of this type only ever come out of Schema.Validate.
type ContentMetadata struct {
	Genres   []string `json:"genres" yaml:"genres" validate:"min=1,dive,clean" description:"Short genre labels, most relevant first" examples:"Drama,Comedy,Thriller,Horror,Sci-Fi,Romance,Documentary,Action,Animation,Mystery,Crime,Fantasy,Adventure,Family"`
	Themes   []string `json:"themes" yaml:"themes" validate:"dive,clean" description:"Key thematic keywords; empty list if none" examples:"family,revenge,love,survival,identity,justice,power,friendship,betrayal,redemption,loss,coming-of-age,corruption,freedom"`
	Mood     []string `json:"mood" yaml:"mood" validate:"dive,clean" description:"Overall tone descriptors; empty list if none" examples:"dark,lighthearted,suspenseful,tense,heartwarming,eerie,comedic,dramatic,inspiring,melancholic,thrilling"`
	Audience Audience `json:"audience" yaml:"audience" validate:"oneof=kids family teens adults" description:"Primary intended audience"`
	Warnings []string `json:"warnings" yaml:"warnings" validate:"dive,clean" description:"Content warnings; empty list means no notable warnings" examples:"violence,language,sexual content,drug use,death,gore,frightening scenes"`
}

// Schema is the structural contract derived from ContentMetadata.
// It holds no mutable state and is safe for concurrent use.
type Schema struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields"`

	index    map[string]int // json name -> struct field index
	validate *validator.Validate
}

// SchemaOption configures schema creation.
type SchemaOption func(*schemaBuilder)

type schemaBuilder struct {
	description string
}

// WithDescription sets the schema description used in prompts.
func WithDescription(desc string) SchemaOption {
	return func(b *schemaBuilder) {
		b.description = desc
	}
}

const defaultDescription = "Content metadata for a streaming catalogue title, inferred from its description."

// New builds the ContentMetadata schema. It panics only if the struct tags
// of ContentMetadata are inconsistent, which is a programming error.
func New(opts ...SchemaOption) *Schema {
	s, err := build(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

var defaultSchema = sync.OnceValue(func() *Schema { return New() })

// Default returns the shared ContentMetadata schema.
func Default() *Schema {
	return defaultSchema()
}

// Validate checks candidate against the default schema.
func Validate(candidate map[string]any) (ContentMetadata, FieldErrors) {
	return Default().Validate(candidate)
}

func build(opts ...SchemaOption) (*Schema, error) {
	builder := &schemaBuilder{description: defaultDescription}
	for _, opt := range opts {
		opt(builder)
	}

	t := reflect.TypeOf(ContentMetadata{})
	fields, index, err := extractFields(t)
	if err != nil {
		return nil, err
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		return getJSONName(sf)
	})
	if err := v.RegisterValidation("clean", func(fl validator.FieldLevel) bool {
		return !HasArtifacts(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("failed to register clean validator: %w", err)
	}

	return &Schema{
		Name:        t.Name(),
		Description: builder.description,
		Fields:      fields,
		index:       index,
		validate:    v,
	}, nil
}

// extractFields derives field definitions from struct tags.
func extractFields(t reflect.Type) ([]Field, map[string]int, error) {
	fields := make([]Field, 0, t.NumField())
	index := make(map[string]int, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		field := Field{
			Name:        getJSONName(sf),
			Description: sf.Tag.Get("description"),
			Required:    true,
		}
		if examples := sf.Tag.Get("examples"); examples != "" {
			field.Examples = strings.Split(examples, ",")
		}

		rules := parseValidators(sf.Tag.Get("validate"))
		switch {
		case sf.Type.Kind() == reflect.String:
			field.Type = TypeString
			if oneof, ok := rules["oneof"]; ok {
				field.Enum = strings.Fields(oneof)
			}
		case sf.Type.Kind() == reflect.Slice && sf.Type.Elem().Kind() == reflect.String:
			field.Type = TypeArray
			if minItems, ok := rules["min"]; ok {
				if _, err := fmt.Sscanf(minItems, "%d", &field.MinItems); err != nil {
					return nil, nil, fmt.Errorf("invalid min rule on %s: %w", sf.Name, err)
				}
			}
		default:
			return nil, nil, fmt.Errorf("unsupported field type: %v for field %s", sf.Type, sf.Name)
		}

		index[field.Name] = i
		fields = append(fields, field)
	}

	return fields, index, nil
}

// getJSONName returns the JSON field name from struct tags.
func getJSONName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" || tag == "-" {
		return sf.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name != "" {
		return name
	}
	return sf.Name
}

// parseValidators returns the top-level (pre-dive) rules of a validate tag.
func parseValidators(tag string) map[string]string {
	rules := make(map[string]string)
	if tag == "" {
		return rules
	}
	for _, rule := range strings.Split(tag, ",") {
		if rule == "dive" {
			break
		}
		name, param, _ := strings.Cut(rule, "=")
		rules[name] = param
	}
	return rules
}

// HasArtifacts reports whether s is blank or still carries JSON wrapping
// left over from the model output (braces, brackets, backticks, stray quotes).
func HasArtifacts(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	if strings.ContainsAny(t, "{}[]`") {
		return true
	}
	return strings.HasPrefix(t, `"`) || strings.HasSuffix(t, `"`)
}

// Validate checks every declared field of candidate and returns either the
// typed record or the complete list of field errors. Unknown keys are ignored.
func (s *Schema) Validate(candidate map[string]any) (ContentMetadata, FieldErrors) {
	var md ContentMetadata
	rv := reflect.ValueOf(&md).Elem()

	shapeErrs := make(map[string]string)
	for _, f := range s.Fields {
		val, exists := candidate[f.Name]
		if !exists {
			shapeErrs[f.Name] = "required field is missing"
			continue
		}
		typed, err := coerceField(f, val)
		if err != nil {
			shapeErrs[f.Name] = err.Error()
			continue
		}
		target := rv.Field(s.index[f.Name])
		target.Set(reflect.ValueOf(typed).Convert(target.Type()))
	}

	constraintErrs := s.checkConstraints(md)

	var errs FieldErrors
	for _, f := range s.Fields {
		if reason, ok := shapeErrs[f.Name]; ok {
			errs = append(errs, FieldError{Field: f.Name, Reason: reason})
			continue
		}
		if reasons, ok := constraintErrs[f.Name]; ok {
			errs = append(errs, FieldError{Field: f.Name, Reason: strings.Join(reasons, "; ")})
		}
	}

	if len(errs) > 0 {
		return ContentMetadata{}, errs
	}
	return md, nil
}

// coerceField checks the decoded JSON value against the field's declared shape.
func coerceField(f Field, val any) (any, error) {
	if val == nil {
		return nil, fmt.Errorf("value is null, expected %s", describeType(f.Type))
	}

	switch f.Type {
	case TypeString:
		str, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", jsonKind(val))
		}
		return str, nil
	case TypeArray:
		arr, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array of strings, got %s", jsonKind(val))
		}
		out := make([]string, 0, len(arr))
		for i, item := range arr {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %s", i, jsonKind(item))
			}
			out = append(out, str)
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

// checkConstraints runs the validate tags on the typed record and groups the
// failures by top-level field name.
func (s *Schema) checkConstraints(md ContentMetadata) map[string][]string {
	grouped := make(map[string][]string)

	err := s.validate.Struct(md)
	if err == nil {
		return grouped
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		grouped[s.Name] = append(grouped[s.Name], err.Error())
		return grouped
	}

	for _, e := range verrs {
		root, _, _ := strings.Cut(e.Field(), "[")
		grouped[root] = append(grouped[root], formatValidationError(e))
	}
	return grouped
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(e.Param(), " ", ", "), e.Value())
	case "clean":
		return fmt.Sprintf("%s is blank or contains JSON wrapping artifacts: %q", e.Field(), e.Value())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

func describeType(t FieldType) string {
	if t == TypeArray {
		return "array of strings"
	}
	return string(t)
}

// jsonKind names the JSON type of a value produced by encoding/json.
func jsonKind(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", val)
	}
}
