// Package llm provides a provider-agnostic gateway to chat models.
//
// Models are addressed with provider-qualified names ("openai/gpt-4o",
// "anthropic/claude-sonnet-4-5", "ollama/llama3.3"). The gateway lazily
// constructs one client per provider:model pair and reuses it for the
// lifetime of the process.
package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls holds the calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Request is a single completion request.
type Request struct {
	// Model is the provider-qualified model name.
	Model    string
	Messages []Message
	Tools    []ToolDef

	// JSONMode extracts a JSON document from the model output into
	// Response.JSON. Extraction never fails; see ExtractJSON.
	JSONMode bool
}

// Response is the model's reply to a Request.
type Response struct {
	Content   string
	ToolCalls []ToolCall

	// JSON is set when the request used JSONMode.
	JSON json.RawMessage
}

// appendToolCall records a tool call with a synthesized sequential id, for
// providers that do not assign call ids of their own.
func (r *Response) appendToolCall(name string, args map[string]any) {
	r.ToolCalls = append(r.ToolCalls, ToolCall{
		ID:        fmt.Sprintf("call_%d", len(r.ToolCalls)),
		Name:      name,
		Arguments: args,
	})
}

// System returns a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResult returns a tool message answering the given call.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// schemaMap converts a JSON schema into the generic map shape provider SDKs
// expect. A nil schema yields a permissive empty object schema.
func schemaMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
