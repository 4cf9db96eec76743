package submit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/abhisek/psytest/internal/apperr"
)

// Schema is a named JSON Schema definition for a request payload.
type Schema struct {
	Name       string
	Definition map[string]any
}

// SubmissionSchema is the shape of POST /api/tests/{testType}/submit.
var SubmissionSchema = &Schema{
	Name: "submission",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{
				"type":    "string",
				"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$",
			},
			"testType": map[string]any{"type": "string", "minLength": 1},
			"language": map[string]any{"type": "string", "pattern": "^[a-z]{2}(-[A-Z]{2})?$"},
			"answers": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 500,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"questionId": map[string]any{"type": "string", "minLength": 1, "maxLength": 128},
						"value": map[string]any{
							"type":  []any{"string", "number", "boolean", "array"},
							"items": map[string]any{"type": "string"},
						},
						"timestamp":   map[string]any{"type": "string"},
						"timeSpentMs": map[string]any{"type": "integer", "minimum": 0},
					},
					"required":             []any{"questionId", "value"},
					"additionalProperties": false,
				},
			},
			"userInfo": map[string]any{
				"type":          "object",
				"maxProperties": 20,
			},
			"durationMs": map[string]any{"type": "integer", "minimum": 0},
		},
		"required":             []any{"answers"},
		"additionalProperties": false,
	},
}

// FeedbackSchema is the shape of POST /api/feedback.
var FeedbackSchema = &Schema{
	Name: "feedback",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string", "maxLength": 64},
			"rating":    map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"comment":   map[string]any{"type": "string", "maxLength": 2000},
		},
		"required":             []any{"rating"},
		"additionalProperties": false,
	},
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

var printer = message.NewPrinter(language.English)

// validatePayload checks raw JSON against schema. Malformed JSON and
// schema failures are returned as *apperr.ValidationError carrying one
// violation per failing location.
func validatePayload(schema *Schema, raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return apperr.Invalid("", "request body is not valid JSON")
	}

	compiled, err := getCompiledSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}

	err = compiled.Validate(parsed)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate %s: %w", schema.Name, err)
	}
	return &apperr.ValidationError{Violations: violations(ve)}
}

// violations flattens the error tree to its leaves.
func violations(ve *jsonschema.ValidationError) []apperr.Violation {
	var out []apperr.Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := pointer(e.InstanceLocation)
		if req, ok := e.ErrorKind.(*kind.Required); ok && len(req.Missing) > 0 {
			for _, m := range req.Missing {
				out = append(out, apperr.Violation{Field: joinField(field, m), Message: "is required"})
			}
			return
		}
		out = append(out, apperr.Violation{Field: field, Message: e.ErrorKind.LocalizedString(printer)})
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// pointer renders an instance location as answers[0].value.
func pointer(loc []string) string {
	var b strings.Builder
	for _, seg := range loc {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func joinField(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// getCompiledSchema returns a cached compiled schema or compiles and caches it.
func getCompiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The jsonschema library expects a parsed JSON value (any), not Go
	// maps with typed slices. Round-trip through JSON to normalise.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	defParsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(defBytes)))
	if err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
