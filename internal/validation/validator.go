// Package validation checks chain documents before they run: structure via
// JSON Schema, then semantics and step references on the parsed chain.
package validation

import (
	"errors"

	"github.com/sinteflow/sinte/pkg/schema"
)

// Option configures a Validator.
type Option func(*Validator)

// WithHandlers enables handler existence checks for action steps.
func WithHandlers(lookup HandlerLookup) Option {
	return func(v *Validator) { v.handlers = lookup }
}

// WithLanguages restricts template dialects to the given names.
func WithLanguages(langs ...string) Option {
	return func(v *Validator) { v.languages = langs }
}

// Validator runs the validation pipeline:
//  1. Structural (JSON Schema on the raw document)
//  2. Parse into a chain
//  3. Semantic (control props, handlers, dialects, duplicate ids)
//  4. References (templates reading steps that have not run yet)
//
// Only errors make a chain invalid; duplicate ids and forward references
// are warnings.
type Validator struct {
	jsonSchema *JSONSchemaValidator
	handlers   HandlerLookup
	languages  []string
}

// New creates a Validator.
func New(opts ...Option) (*Validator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	v := &Validator{jsonSchema: jsv}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ValidateDocument validates a decoded YAML or JSON chain document. The
// parsed definition is returned whenever parsing succeeded, even if later
// stages found errors. Structural errors short-circuit the later stages.
func (v *Validator) ValidateDocument(doc any) (*schema.Definition, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	if err := v.jsonSchema.ValidateDocument(doc); err != nil {
		addStructural(result, err)
		return nil, result
	}

	def, err := schema.ParseDefinition(doc)
	if err != nil {
		result.AddError("/", "", schema.ErrorCode(err), err.Error())
		return nil, result
	}

	result.Merge(v.ValidateChain(def.Steps))
	return def, result
}

// ValidateChain validates an already parsed chain.
func (v *Validator) ValidateChain(chain schema.Chain) *schema.ValidationResult {
	result := validateSemantic(chain, v.handlers, v.languages)
	result.Merge(validateRefs(chain))
	return result
}

// ValidateInput checks run input against a definition's input schema.
func (v *Validator) ValidateInput(input map[string]any, inputSchema map[string]any) error {
	return v.jsonSchema.ValidateInput(input, inputSchema)
}

// addStructural expands a JSON Schema failure into one issue per violation.
func addStructural(result *schema.ValidationResult, err error) {
	var se *schema.SinteError
	if !errors.As(err, &se) {
		result.AddError("/", "", schema.ErrCodeValidation, err.Error())
		return
	}
	if violations, ok := se.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError("/", "", schema.ErrCodeValidation, msg)
		}
		return
	}
	result.AddError("/", "", schema.ErrCodeValidation, se.Message)
}
