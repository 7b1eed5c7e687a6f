package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiClient talks to the OpenAI chat completions API.
type openaiClient struct {
	client      openai.Client
	model       string
	temperature float32
}

func newOpenAIClient(apiKey, model string, temperature float32) (*openaiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
	}
	return &openaiClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
	}, nil
}

func (c *openaiClient) complete(ctx context.Context, req Request) (*Response, error) {
	msgs, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(float64(c.temperature)),
	}
	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	msg := completion.Choices[0].Message
	resp := &Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}
	return resp, nil
}

func toOpenAIMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encoding tool call arguments: %w", err)
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(args),
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, nil
}

func toOpenAITools(defs []ToolDef) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		params, err := schemaMap(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("converting schema for tool %q: %w", d.Name, err)
		}
		out = append(out, openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		))
	}
	return out, nil
}

// parseArguments decodes a JSON arguments payload, tolerating garbage:
// a payload that fails to parse yields an empty argument map rather than
// aborting the turn.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
