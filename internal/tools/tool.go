// Package tools provides tool definition and registration for the agent
// loop.
//
// There is exactly one way to be a tool: implement the Tool interface.
// Adapters exist for plain functions (New) and for raw OpenAI-style
// definition maps (FromRawDefinition), both converted once at registration.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/loomlabs/loom/internal/llm"
)

// Tool is the single execution contract offered to the model.
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier of the tool.
	Name() string

	// Description returns a description of the tool's functionality.
	// The model uses this to decide when to call the tool.
	Description() string

	// Schema returns the JSON schema of the tool's arguments.
	// A nil schema means the tool takes no arguments.
	Schema() *jsonschema.Schema

	// Invoke executes the tool. The returned string is fed back to the
	// model verbatim as the tool result.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// funcTool adapts a plain function into a Tool.
type funcTool struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

// New creates a tool from a function.
//
// Example:
//
//	echo := tools.New("echo", "Echo the input back.", schema,
//	    func(ctx context.Context, args map[string]any) (string, error) {
//	        text, _ := args["text"].(string)
//	        return text, nil
//	    })
func New(name, description string, schema *jsonschema.Schema, fn func(ctx context.Context, args map[string]any) (string, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Schema() *jsonschema.Schema { return t.schema }
func (t *funcTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// FromRawDefinition adapts an OpenAI-style raw tool definition:
//
//	{
//	  "type": "function",
//	  "function": {"name": ..., "description": ..., "parameters": {...}}
//	}
//
// The map is validated and converted exactly once, here; nothing downstream
// ever inspects raw maps again.
func FromRawDefinition(def map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) (Tool, error) {
	function, ok := def["function"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("raw tool definition missing \"function\" object")
	}
	name, ok := function["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("raw tool definition missing function name")
	}
	description, _ := function["description"].(string)

	var schema *jsonschema.Schema
	if params, ok := function["parameters"]; ok {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding parameters for tool %q: %w", name, err)
		}
		schema = new(jsonschema.Schema)
		if err := json.Unmarshal(raw, schema); err != nil {
			return nil, fmt.Errorf("parsing parameters for tool %q: %w", name, err)
		}
	}

	return New(name, description, schema, fn), nil
}

// Def returns the model-facing definition of a tool.
func Def(t Tool) llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Schema:      t.Schema(),
	}
}
