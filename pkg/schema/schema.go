// Package schema validates planner and report payloads against the
// embedded JSON Schemas. The schemas are compiled once at startup;
// a failing payload yields a ValidationError carrying a dotted path.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Raw schema documents, embedded so planner prompts can quote them.
var (
	//go:embed schemas/plan.json
	PlanJSON []byte

	//go:embed schemas/evidence_pack.json
	EvidencePackJSON []byte

	//go:embed schemas/report.json
	ReportJSON []byte
)

// Compiled schemas for the three validated payload kinds.
var (
	Plan         = mustCompile("plan.json", PlanJSON)
	EvidencePack = mustCompile("evidence_pack.json", EvidencePackJSON)
	Report       = mustCompile("report.json", ReportJSON)
)

// ValidationError reports the first failing location in a payload.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed at %s: %s", e.Path, e.Message)
}

func mustCompile(name string, raw []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(string(raw))); err != nil {
		panic(fmt.Sprintf("schema: add %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("schema: compile %s: %v", name, err))
	}
	return schema
}

// Validate checks payload against schema. The payload may be a struct,
// a map, or raw JSON bytes; it is normalized through JSON before
// validation so struct tags apply.
func Validate(payload any, schema *jsonschema.Schema) error {
	var doc any
	switch p := payload.(type) {
	case []byte:
		if err := json.Unmarshal(p, &doc); err != nil {
			return &ValidationError{Path: "<root>", Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return &ValidationError{Path: "<root>", Message: fmt.Sprintf("unencodable payload: %v", err)}
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return &ValidationError{Path: "<root>", Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			ve = leafCause(vErr)
			return &ValidationError{Path: dottedPath(ve.InstanceLocation), Message: ve.Message}
		}
		return &ValidationError{Path: "<root>", Message: err.Error()}
	}
	return nil
}

// leafCause walks to the deepest cause so the error names the actual
// offending field instead of the schema root.
func leafCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// dottedPath converts a JSON pointer ("/meta/host") to dotted form
// ("meta.host"); the document root becomes "<root>".
func dottedPath(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return "<root>"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}
