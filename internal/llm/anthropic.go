package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens is required by the Anthropic messages API.
const anthropicMaxTokens = 4096

// anthropicClient talks to the Anthropic messages API.
type anthropicClient struct {
	client      *anthropic.Client
	model       anthropic.Model
	temperature float32
}

func newAnthropicClient(apiKey, model string, temperature float32) (*anthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrMissingCredential)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicClient{
		client:      &client,
		model:       anthropic.Model(model),
		temperature: temperature,
	}, nil
}

func (c *anthropicClient) complete(ctx context.Context, req Request) (*Response, error) {
	msgs, system, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropic.Float(float64(c.temperature)),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(b.Input, &args); err != nil || args == nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return resp, nil
}

// toAnthropicMessages converts the transcript. System messages move into the
// dedicated system field; tool results become tool_result blocks inside user
// messages, with consecutive results merged into a single message.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	appendToolResult := func(m Message) {
		block := anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: m.ToolCallID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: m.Content}},
				},
			},
		}
		if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && len(out[n-1].Content) > 0 && out[n-1].Content[0].OfToolResult != nil {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{block},
		})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
				continue
			}
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: tc.Arguments,
					},
				})
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			appendToolResult(m)
		default:
			return nil, nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, system, nil
}

func toAnthropicTools(defs []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if m, err := schemaMap(d.Schema); err == nil {
			if props, ok := m["properties"]; ok {
				schema.Properties = props
			}
			if req, ok := m["required"].([]any); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, d.Name)
		if d.Description != "" {
			out[i].OfTool.Description = anthropic.String(d.Description)
		}
	}
	return out
}
