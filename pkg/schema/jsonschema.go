package schema

import (
	"encoding/json"
	"strings"
)

// ToJSONSchema converts the schema to JSON Schema format.
func (s *Schema) ToJSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))

	for _, field := range s.Fields {
		properties[field.Name] = fieldToJSONSchema(field)
		if field.Required {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"title":      s.Name,
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	if s.Description != "" {
		schema["description"] = s.Description
	}

	return schema
}

// fieldToJSONSchema converts a Field to JSON Schema format.
func fieldToJSONSchema(f Field) map[string]any {
	schema := map[string]any{
		"type": string(f.Type),
	}

	if f.Description != "" {
		schema["description"] = f.Description
	}

	switch f.Type {
	case TypeArray:
		schema["items"] = map[string]any{"type": string(TypeString)}
		if f.MinItems > 0 {
			schema["minItems"] = f.MinItems
		}
	case TypeString:
		if len(f.Enum) > 0 {
			schema["enum"] = f.Enum
		}
	}

	return schema
}

// JSONSchemaString renders the JSON schema as indented text for prompts.
func (s *Schema) JSONSchemaString() string {
	data, err := json.MarshalIndent(s.ToJSONSchema(), "", "  ")
	if err != nil {
		// maps of strings and ints always marshal
		return "{}"
	}
	return string(data)
}

// ToPromptDescription generates a human-readable field list for the model.
func (s *Schema) ToPromptDescription() string {
	var sb strings.Builder

	for _, field := range s.Fields {
		sb.WriteString("- ")
		sb.WriteString(field.Name)
		sb.WriteString(" (")
		sb.WriteString(describeType(field.Type))
		if field.Required {
			sb.WriteString(", required")
		}
		if field.MinItems > 0 {
			sb.WriteString(", at least one item")
		}
		sb.WriteString(")")

		if field.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(field.Description)
		}

		if len(field.Enum) > 0 {
			sb.WriteString(". Must be exactly one of: ")
			sb.WriteString(strings.Join(field.Enum, ", "))
		} else if len(field.Examples) > 0 {
			sb.WriteString(". Suggested values: ")
			sb.WriteString(strings.Join(field.Examples, ", "))
		}

		sb.WriteString("\n")
	}

	return sb.String()
}
