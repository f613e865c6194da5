// Package schema compiles and applies the JSON Schema shapes declared by
// workflow steps and tools. Shapes are draft 2020-12 documents embedded as
// string constants next to the step or tool that declares them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Shape is a compiled schema, safe for concurrent use.
type Shape struct {
	compiled *jsonschema.Schema
	raw      string
}

// Compile parses and compiles a JSON Schema document.
func Compile(raw string) (*Shape, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()

	const url = "spear://shape.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Shape{compiled: compiled, raw: raw}, nil
}

// MustShape compiles a schema literal, panicking on error. Shapes are
// package-level constants, so a bad literal is a programming error.
func MustShape(raw string) *Shape {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a document against the shape. A nil Shape accepts anything.
func (s *Shape) Validate(doc map[string]any) error {
	if s == nil {
		return nil
	}

	value, err := toJSONValue(doc)
	if err != nil {
		return &ValidationError{Violations: []string{fmt.Sprintf("/: not serializable: %v", err)}}
	}

	if err := s.compiled.Validate(value); err != nil {
		return toValidationError(err)
	}
	return nil
}

// ValidationError reports every leaf violation found during validation.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	switch len(e.Violations) {
	case 0:
		return "validation failed"
	case 1:
		return e.Violations[0]
	default:
		return fmt.Sprintf("validation failed with %d violations: %s",
			len(e.Violations), strings.Join(e.Violations, "; "))
	}
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toValidationError(err error) *ValidationError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &ValidationError{Violations: []string{err.Error()}}
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		violations = []string{verr.Error()}
	}
	return &ValidationError{Violations: violations}
}

// collectViolations walks the error tree and keeps leaf messages with their
// instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
