package llm

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
)

// Schema describes the JSON object a reply must contain.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// SchemaFor reflects a strict JSON schema from the struct value v. Every field
// without omitempty is required and additional properties are rejected, matching
// what OpenAI strict structured outputs accept.
func SchemaFor(name, description string, v any) (*Schema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, eris.New("schema name is required")
	}

	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}

	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, eris.Wrapf(err, "encoding schema %s", name)
	}

	var definition map[string]any
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, eris.Wrapf(err, "decoding schema %s", name)
	}

	delete(definition, "$schema")
	delete(definition, "$id")

	if definition["type"] != "object" {
		return nil, eris.Errorf("schema %s must describe an object", name)
	}

	return &Schema{
		Name:        name,
		Description: description,
		Definition:  definition,
	}, nil
}

// Required returns the property names the schema marks as required.
func (s *Schema) Required() []string {
	if s == nil {
		return nil
	}

	switch required := s.Definition["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, item := range required {
			if name, ok := item.(string); ok {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}
