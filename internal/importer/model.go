package importer

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node is an untyped schema object as decoded from JSON.
type Node = map[string]any

// Keywords is the allow-list of schema keywords copied into the normalized
// model.
var Keywords = []string{
	"title", "description", "default", "multipleOf", "maximum", "exclusiveMaximum",
	"minimum", "exclusiveMinimum", "maxLength", "minLength", "pattern", "items",
	"enum", "type", "required",
}

// IDEntry records where a scoped schema lives: its absolute scope URI and
// its slash-separated path inside the model.
type IDEntry struct {
	Absolute string `json:"absolute" yaml:"absolute"`
	Path     string `json:"path" yaml:"path"`
}

// Model is the normalized, reference-resolved output of an import.
type Model struct {
	Properties  Node               `json:"properties" yaml:"properties"`
	Definitions Node               `json:"definitions" yaml:"definitions"`
	IDs         map[string]IDEntry `json:"ids" yaml:"ids"`
}

func newModel() *Model {
	return &Model{
		Properties:  Node{},
		Definitions: Node{},
		IDs:         map[string]IDEntry{},
	}
}

// root is the tree model paths are walked against.
func (m *Model) root() Node {
	return Node{"properties": m.Properties, "definitions": m.Definitions}
}

func cloneNode(n Node) Node {
	out := make(Node, len(n))
	for k, v := range n {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneNode(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(n Node) []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonType names the JSON type of a decoded value for error messages.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
