package schema

import (
	"fmt"
	"sort"
)

// ParseChain converts generically decoded YAML or JSON data into a Chain.
// The data is either a list of step records or an object with a "steps" list.
// Block props are parsed recursively; nothing is evaluated.
func ParseChain(data any) (Chain, error) {
	if m, ok := asStringMap(data); ok {
		steps, ok := m["steps"]
		if !ok {
			return nil, NewError(ErrCodeValidation, "chain document has no steps")
		}
		data = steps
	}
	return parseChainAt(data, "")
}

func parseChainAt(data any, path string) (Chain, error) {
	if data == nil {
		return Chain{}, nil
	}
	if c, ok := data.(Chain); ok {
		return c, nil
	}
	list, ok := data.([]any)
	if !ok {
		return nil, NewErrorf(ErrCodeValidation,
			"%s: chain must be a list of steps, got %T", pathOrRoot(path), data)
	}

	chain := make(Chain, 0, len(list))
	for i, raw := range list {
		step, err := parseStep(raw, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return nil, err
		}
		chain = append(chain, step)
	}
	return chain, nil
}

func parseStep(raw any, path string) (Step, error) {
	m, ok := asStringMap(raw)
	if !ok {
		return nil, NewErrorf(ErrCodeValidation, "%s: step must be an object, got %T", path, raw)
	}

	id, _ := m["id"].(string)
	if id == "" {
		return nil, NewErrorf(ErrCodeValidation, "%s: step is missing an id", path)
	}
	provider, _ := m["provider"].(string)
	action, _ := m["action"].(string)

	props, err := parseProps(m["props"], path+"/props")
	if err != nil {
		return nil, err
	}

	if provider == FlowProvider {
		return &ControlStep{ID: id, Kind: ControlKind(action), Props: props}, nil
	}
	if provider == "" || action == "" {
		return nil, NewErrorf(ErrCodeValidation,
			"%s: step %q needs both provider and action", path, id).WithStep(id)
	}
	return &ActionStep{ID: id, Provider: provider, Action: action, Props: props}, nil
}

func parseProps(raw any, path string) (Props, error) {
	if raw == nil {
		return Props{}, nil
	}
	m, ok := asStringMap(raw)
	if !ok {
		return nil, NewErrorf(ErrCodeValidation, "%s: props must be an object, got %T", path, raw)
	}

	props := make(Props, len(m))
	for _, name := range sortedKeys(m) {
		spec, err := parsePropSpec(m[name], path+"/"+name)
		if err != nil {
			return nil, err
		}
		props[name] = spec
	}
	return props, nil
}

// parsePropSpec reads a {type, lang, value} declaration. Anything that is not
// shaped like one is taken as a literal value.
func parsePropSpec(raw any, path string) (PropSpec, error) {
	m, ok := asStringMap(raw)
	if !ok || !isPropSpecShape(m) {
		return Literal(raw), nil
	}

	typ, _ := m["type"].(string)
	lang, _ := m["lang"].(string)
	spec := PropSpec{Type: PropType(typ), Lang: lang, Value: m["value"]}

	switch spec.Type {
	case PropLiteral:
	case PropTemplate:
		if _, ok := spec.Value.(string); !ok {
			return PropSpec{}, NewErrorf(ErrCodeValidation,
				"%s: template value must be a string, got %T", path, spec.Value)
		}
	case PropBlock:
		chain, err := parseChainAt(spec.Value, path+"/value")
		if err != nil {
			return PropSpec{}, err
		}
		spec.Value = chain
	default:
		return PropSpec{}, NewErrorf(ErrCodeValidation, "%s: unknown prop type %q", path, typ)
	}
	return spec, nil
}

func isPropSpecShape(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		switch k {
		case "type", "lang", "value":
		default:
			return false
		}
	}
	return true
}

// asStringMap accepts both map[string]any and the map[any]any some YAML
// decoders produce.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
