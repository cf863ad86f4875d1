package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sinteflow/sinte/pkg/schema"
)

const chainSchemaURL = "https://sinteflow.dev/schemas/chain.json"

// chainSchemaJSON describes a chain document as written on disk, before it is
// parsed: either a bare list of steps or an object with a steps list.
const chainSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://sinteflow.dev/schemas/chain.json",
  "if": { "type": "array" },
  "then": { "$ref": "#/$defs/steps" },
  "else": { "$ref": "#/$defs/document" },
  "$defs": {
    "document": {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "name": { "type": "string", "pattern": "^[A-Za-z0-9_.-]+$" },
        "description": { "type": "string" },
        "input_schema": { "type": "object" },
        "steps": { "$ref": "#/$defs/steps" }
      },
      "additionalProperties": false
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "step": {
      "type": "object",
      "required": ["id", "provider", "action"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "provider": { "type": "string", "minLength": 1 },
        "action": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "props": {
          "type": ["object", "null"],
          "additionalProperties": { "$ref": "#/$defs/prop" }
        }
      },
      "additionalProperties": false
    },
    "prop": {
      "if": {
        "type": "object",
        "required": ["type"],
        "propertyNames": { "enum": ["type", "lang", "value"] }
      },
      "then": {
        "properties": {
          "type": { "enum": ["", "template", "block"] },
          "lang": { "type": "string" }
        },
        "allOf": [
          {
            "if": { "properties": { "type": { "const": "template" } } },
            "then": {
              "required": ["value"],
              "properties": { "value": { "type": "string", "minLength": 1 } }
            }
          },
          {
            "if": { "properties": { "type": { "const": "block" } } },
            "then": {
              "properties": { "value": { "oneOf": [ { "$ref": "#/$defs/steps" }, { "type": "null" } ] } }
            }
          }
        ]
      }
    }
  }
}`

// JSONSchemaValidator checks raw chain documents and run inputs using JSON
// Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	chainSchema *jsonschema.Schema

	// mu guards the cache of compiled input schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the chain schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(chainSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal chain schema: %w", err)
	}
	if err := c.AddResource(chainSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add chain schema resource: %w", err)
	}
	compiled, err := c.Compile(chainSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile chain schema: %w", err)
	}

	return &JSONSchemaValidator{
		chainSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDocument checks a decoded chain document against the chain schema.
func (v *JSONSchemaValidator) ValidateDocument(doc any) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "chain document is empty")
	}

	val, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "chain document is not JSON compatible").WithCause(err)
	}
	if err := v.chainSchema.Validate(val); err != nil {
		return toSinteError(err)
	}
	return nil
}

// ValidateInput checks run input against a JSON Schema given as a decoded
// object. A nil schema accepts any input.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema map[string]any) error {
	if len(inputSchema) == 0 {
		return nil
	}
	if input == nil {
		input = map[string]any{}
	}

	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}
	compiled, err := v.getOrCompile(raw)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "input is not JSON compatible").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toSinteError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("sinte://input-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so that numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSinteError converts a jsonschema.ValidationError into a SinteError whose
// details list every leaf violation with its instance location.
func toSinteError(err error) *schema.SinteError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
