// Package schema holds the versioned output contracts for each document
// kind. A single descriptor is the source of truth for both sides of the
// provider exchange: it renders the instruction text sent with the document
// and compiles to a JSON Schema used to validate the response.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/model"
)

// FieldType enumerates the value shapes a contract field may take.
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeNumber      FieldType = "number"
	TypeEnum        FieldType = "enum"
	TypeStringArray FieldType = "string_array"
	TypeObjectArray FieldType = "object_array"
)

// Field describes one attribute of a document kind's output contract.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Enum        []string // for TypeEnum
	Object      []Field  // element fields for TypeObjectArray
	Description string
}

// Descriptor is the full contract for one document kind. Descriptors are
// static and shared; they are read-only after package init.
type Descriptor struct {
	Kind    model.DocumentKind
	Version int
	Fields  []Field

	once     sync.Once
	compiled *jsonschema.Schema
	initErr  error
}

// ViolationError reports a provider response that did not match the
// contracted shape. It is terminal at the extraction layer: resubmitting an
// identical request typically reproduces the same malformed output.
type ViolationError struct {
	Kind   model.DocumentKind
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema violation (%s): %s", e.Kind, e.Detail)
}

// IsViolation reports whether err wraps a ViolationError.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// Instructions renders the contract as the instruction text appended to the
// extraction prompt: field names, types, enumerated values, and the
// never-fabricate sentinel rule.
func (d *Descriptor) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Return ONLY a single JSON object with exactly these fields (contract v%d):\n", d.Version)
	for _, f := range d.Fields {
		writeFieldLine(&b, f, 0)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- If a value cannot be found in the document, use \"unknown\" for text fields and null for numeric fields. Never fabricate a value.\n")
	b.WriteString("- Do not wrap the JSON in markdown fences or add commentary.\n")
	b.WriteString("- Include every listed field, even when its value is unknown.\n")
	return b.String()
}

func writeFieldLine(b *strings.Builder, f Field, indent int) {
	pad := strings.Repeat("  ", indent)
	req := "optional"
	if f.Required {
		req = "required"
	}

	switch f.Type {
	case TypeEnum:
		fmt.Fprintf(b, "%s- %q (string, %s, one of: %s)", pad, f.Name, req, quoteJoin(f.Enum))
	case TypeStringArray:
		fmt.Fprintf(b, "%s- %q (array of strings, %s)", pad, f.Name, req)
	case TypeObjectArray:
		fmt.Fprintf(b, "%s- %q (array of objects, %s)", pad, f.Name, req)
	case TypeNumber:
		fmt.Fprintf(b, "%s- %q (number or null, %s)", pad, f.Name, req)
	default:
		fmt.Fprintf(b, "%s- %q (string, %s)", pad, f.Name, req)
	}
	if f.Description != "" {
		fmt.Fprintf(b, ": %s", f.Description)
	}
	b.WriteString("\n")

	for _, sub := range f.Object {
		writeFieldLine(b, sub, indent+1)
	}
}

func quoteJoin(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

// JSONSchema renders the descriptor as a JSON Schema document.
func (d *Descriptor) JSONSchema() ([]byte, error) {
	doc := map[string]any{
		"type":                 "object",
		"properties":           propertiesFor(d.Fields),
		"required":             requiredFor(d.Fields),
		"additionalProperties": true,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: marshal %s contract", d.Kind)
	}
	return data, nil
}

func propertiesFor(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = schemaFor(f)
	}
	return props
}

func requiredFor(fields []Field) []string {
	req := []string{}
	for _, f := range fields {
		if f.Required {
			req = append(req, f.Name)
		}
	}
	return req
}

func schemaFor(f Field) map[string]any {
	switch f.Type {
	case TypeNumber:
		// Numbers are nullable: null is the numeric unknown sentinel.
		return map[string]any{"type": []string{"number", "null"}}
	case TypeEnum:
		return map[string]any{"type": "string", "enum": f.Enum}
	case TypeStringArray:
		return map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		}
	case TypeObjectArray:
		return map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"properties":           propertiesFor(f.Object),
				"required":             requiredFor(f.Object),
				"additionalProperties": true,
			},
		}
	default:
		return map[string]any{"type": "string"}
	}
}

func (d *Descriptor) compile() {
	data, err := d.JSONSchema()
	if err != nil {
		d.initErr = err
		return
	}
	compiler := jsonschema.NewCompiler()
	d.compiled, d.initErr = compiler.Compile(data)
	if d.initErr != nil {
		d.initErr = eris.Wrapf(d.initErr, "schema: compile %s contract", d.Kind)
	}
}

// Validate checks a candidate response body against the contract. A nil
// return means the body may be decoded into the kind's typed extraction
// struct. Any mismatch is reported as a *ViolationError.
func (d *Descriptor) Validate(data []byte) error {
	d.once.Do(d.compile)
	if d.initErr != nil {
		return d.initErr
	}

	if !json.Valid(data) {
		return &ViolationError{Kind: d.Kind, Detail: "response is not valid JSON"}
	}

	result := d.compiled.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return &ViolationError{Kind: d.Kind, Detail: fmt.Sprintf("%v", result.Errors)}
}
