package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// ollamaClient talks to a local or remote Ollama server. Ollama needs no
// credential; an unreachable host surfaces as a completion error.
type ollamaClient struct {
	client *api.Client
	model  string
}

func newOllamaClient(host, model string) (*ollamaClient, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama host %q: %w", host, err)
	}
	return &ollamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

func (c *ollamaClient) complete(ctx context.Context, req Request) (*Response, error) {
	msgs := toOllamaMessages(req.Messages)

	tools, err := toOllamaTools(req.Tools)
	if err != nil {
		return nil, err
	}

	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Tools:    tools,
		Stream:   func(b bool) *bool { return &b }(false),
	}

	resp := &Response{}
	var sb strings.Builder
	err = c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		for _, tc := range r.Message.ToolCalls {
			// Ollama assigns no call ids; synthesize sequential ones so the
			// transcript keeps call/result pairing across callbacks.
			resp.appendToolCall(tc.Function.Name, map[string]any(tc.Function.Arguments))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Content = sb.String()
	return resp, nil
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: api.ToolCallFunctionArguments(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// toOllamaTools converts tool definitions through a JSON round trip; the
// api package's property type understands both string and array forms.
func toOllamaTools(defs []ToolDef) ([]api.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]api.Tool, 0, len(defs))
	for _, d := range defs {
		m, err := schemaMap(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("converting schema for tool %q: %w", d.Name, err)
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding schema for tool %q: %w", d.Name, err)
		}
		var params api.ToolFunctionParameters
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decoding schema for tool %q: %w", d.Name, err)
		}
		if params.Type == "" {
			params.Type = "object"
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}
