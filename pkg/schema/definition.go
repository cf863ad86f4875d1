package schema

// Definition is a chain document: the steps plus optional metadata. A bare
// step list is a Definition with only Steps set.
type Definition struct {
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Steps       Chain          `json:"steps" yaml:"steps"`
}

// ParseDefinition converts generically decoded YAML or JSON data into a
// Definition. It accepts the same shapes as ParseChain.
func ParseDefinition(data any) (*Definition, error) {
	def := &Definition{}
	if m, ok := asStringMap(data); ok {
		def.Name, _ = m["name"].(string)
		def.Description, _ = m["description"].(string)
		if raw, present := m["input_schema"]; present && raw != nil {
			s, ok := asStringMap(raw)
			if !ok {
				return nil, NewErrorf(ErrCodeValidation, "input_schema must be an object, got %T", raw)
			}
			def.InputSchema = s
		}
	}

	chain, err := ParseChain(data)
	if err != nil {
		return nil, err
	}
	def.Steps = chain
	return def, nil
}
