package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Node is a single step in a ComfyUI workflow graph, keyed by class type
// with an open-ended set of input fields.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Template is a workflow graph in ComfyUI API format: node id -> node.
type Template map[string]Node

// TemplateLoadError reports a template file that could not be read,
// parsed, or validated. Submissions abort before any remote call.
type TemplateLoadError struct {
	Path string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("workflow template %s: %v", e.Path, e.Err)
}

func (e *TemplateLoadError) Unwrap() error { return e.Err }

// templateSchema checks only the structural shape of the graph. Node
// inputs stay open so templates can carry fields this gateway never
// touches.
const templateSchema = `{
  "type": "object",
  "minProperties": 1,
  "additionalProperties": {
    "type": "object",
    "required": ["class_type", "inputs"],
    "properties": {
      "class_type": {"type": "string", "minLength": 1},
      "inputs": {"type": "object"}
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("template.schema.json", templateSchema)

// Load reads and validates a workflow template file.
func Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse validates raw template JSON and decodes it into a Template.
func Parse(path string, data []byte) (Template, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &TemplateLoadError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, &TemplateLoadError{Path: path, Err: fmt.Errorf("validate: %w", err)}
	}
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, &TemplateLoadError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return tpl, nil
}

// Copy deep-copies the template so per-request patches never leak into
// the loaded original or into concurrent builds.
func (t Template) Copy() Template {
	out := make(Template, len(t))
	for id, node := range t {
		out[id] = Node{
			ClassType: node.ClassType,
			Inputs:    copyMap(node.Inputs),
			Meta:      copyMap(node.Meta),
		}
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

// FindByClass returns the ids of nodes whose class type contains the
// given substring, useful for diagnostics.
func (t Template) FindByClass(classSubstr string) []string {
	var ids []string
	for id, node := range t {
		if strings.Contains(node.ClassType, classSubstr) {
			ids = append(ids, id)
		}
	}
	return ids
}
