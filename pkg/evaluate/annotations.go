package evaluate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmylchreest/cinetag/pkg/batch"
	"github.com/jmylchreest/cinetag/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Annotation is a hand-labeled description with the metadata a careful
// reviewer expects for it.
type Annotation struct {
	Title       string                 `json:"title" yaml:"title"`
	Description string                 `json:"description" yaml:"description"`
	Expected    schema.ContentMetadata `json:"expected" yaml:"expected"`
}

// LoadAnnotations decodes a YAML (or JSON) list of annotations.
func LoadAnnotations(r io.Reader) ([]Annotation, error) {
	var anns []Annotation
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&anns); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("annotations file is empty")
		}
		return nil, fmt.Errorf("decoding annotations: %w", err)
	}

	seen := make(map[string]bool, len(anns))
	for i, a := range anns {
		switch {
		case strings.TrimSpace(a.Title) == "":
			return nil, fmt.Errorf("annotation %d: title is required", i+1)
		case strings.TrimSpace(a.Description) == "":
			return nil, fmt.Errorf("annotation %q: description is required", a.Title)
		case seen[a.Title]:
			return nil, fmt.Errorf("annotation %q: duplicate title", a.Title)
		case len(a.Expected.Genres) == 0:
			return nil, fmt.Errorf("annotation %q: expected genres are required", a.Title)
		case !a.Expected.Audience.Valid():
			return nil, fmt.Errorf("annotation %q: invalid expected audience %q", a.Title, a.Expected.Audience)
		}
		seen[a.Title] = true
	}
	return anns, nil
}

// LoadAnnotationsFile reads annotations from path.
func LoadAnnotationsFile(path string) ([]Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadAnnotations(f)
}

// Inputs converts annotations to batch inputs in file order.
func Inputs(anns []Annotation) []batch.Input {
	inputs := make([]batch.Input, len(anns))
	for i, a := range anns {
		inputs[i] = batch.Input{Row: i + 1, Title: a.Title, Description: a.Description}
	}
	return inputs
}
