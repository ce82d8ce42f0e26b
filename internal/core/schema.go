package core

import "encoding/json"

// Schema is the subset of JSON Schema used for tool parameters and
// structured output. It marshals to plain JSON Schema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

func String(desc string) *Schema { return &Schema{Type: "string", Description: desc} }

func Number(desc string) *Schema { return &Schema{Type: "number", Description: desc} }

func Enum(desc string, values ...string) *Schema {
	return &Schema{Type: "string", Description: desc, Enum: values}
}

func ArrayOf(desc string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: desc, Items: items}
}

// JSON returns the schema document; a nil schema is an empty object schema.
func (s *Schema) JSON() json.RawMessage {
	if s == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}

// MissingRequired reports the first required property absent from args.
func (s *Schema) MissingRequired(args json.RawMessage) (string, bool) {
	if s == nil || len(s.Required) == 0 {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return s.Required[0], true
	}
	for _, name := range s.Required {
		v, ok := m[name]
		if !ok || string(v) == "null" {
			return name, true
		}
	}
	return "", false
}
