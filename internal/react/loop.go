// Package react implements the bounded reason-and-act loop that drives a
// single conversational turn: call the model, execute any tool calls it
// requests, feed the results back, repeat until the model answers in plain
// text or the iteration bound is hit.
package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
	"github.com/loomlabs/loom/internal/tools"
)

// DefaultMaxIterations bounds the loop when the caller does not.
const DefaultMaxIterations = 10

// Tool failures are reported to the model as results, never as errors; the
// model decides how to recover.
const (
	toolNotFound    = "tool not found"
	toolErrorPrefix = "error executing tool: "
)

// Completer is the completion surface the loop drives. *llm.Gateway
// satisfies it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Params configures one run of the loop.
type Params struct {
	// Model is the provider-qualified model name.
	Model    string
	Messages []llm.Message

	// Registry supplies the tools offered to the model. Nil means no tools.
	Registry *tools.Registry

	// UserID is the authenticated caller. Any "user_id"/"userId" argument
	// the model produces is overwritten with it before tool execution.
	UserID string

	// MaxIterations bounds model calls per run. Zero means
	// DefaultMaxIterations.
	MaxIterations int

	JSONMode bool
}

// Result is the outcome of a run.
type Result struct {
	// Content is the final assistant text.
	Content string

	// JSON is the extracted document when the run used JSON mode.
	JSON json.RawMessage

	// Messages is the full transcript including intermediate tool-call and
	// tool-result messages and the final assistant message.
	Messages []llm.Message

	// Iterations counts model calls made.
	Iterations int

	// BoundHit reports that the loop stopped because it reached
	// MaxIterations while the model was still requesting tools.
	BoundHit bool
}

// Loop executes bounded tool-use runs against a Completer.
type Loop struct {
	completer Completer
	logger    log.Logger
}

// NewLoop creates a loop.
func NewLoop(completer Completer, logger log.Logger) *Loop {
	return &Loop{completer: completer, logger: logger}
}

// Run executes the loop until the model stops requesting tools or the
// iteration bound is reached.
//
// A model error mid-run degrades to the last successful response when one
// exists; a model error on the first call is returned to the caller. Tool
// execution never aborts a run: unknown tools and tool errors become result
// strings the model can react to.
func (l *Loop) Run(ctx context.Context, p Params) (*Result, error) {
	maxIterations := p.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	msgs := slices.Clone(p.Messages)
	var defs []llm.ToolDef
	if p.Registry != nil {
		defs = p.Registry.Defs()
	}

	var last *llm.Response
	iterations := 0
	for iterations < maxIterations {
		resp, err := l.completer.Complete(ctx, llm.Request{
			Model:    p.Model,
			Messages: msgs,
			Tools:    defs,
			JSONMode: p.JSONMode,
		})
		iterations++
		if err != nil {
			if last != nil {
				l.logger.Warn("model call failed mid-run, keeping last response",
					"iteration", iterations, "error", err)
				return l.finish(last, msgs, iterations-1, false), nil
			}
			if !errors.Is(err, llm.ErrCompletionFailed) {
				err = fmt.Errorf("%w: %v", llm.ErrCompletionFailed, err)
			}
			return nil, err
		}
		last = resp

		if len(resp.ToolCalls) == 0 {
			return l.finish(resp, msgs, iterations, false), nil
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			args := sanitizeArgs(tc.Arguments, p.UserID)
			msgs = append(msgs, llm.ToolResult(tc.ID, l.execute(ctx, p.Registry, tc.Name, args)))
		}
	}

	l.logger.Warn("iteration bound reached while model still requesting tools",
		"max_iterations", maxIterations)
	return l.finish(last, msgs, iterations, true), nil
}

func (l *Loop) finish(resp *llm.Response, msgs []llm.Message, iterations int, boundHit bool) *Result {
	return &Result{
		Content:    resp.Content,
		JSON:       resp.JSON,
		Messages:   append(msgs, llm.Assistant(resp.Content)),
		Iterations: iterations,
		BoundHit:   boundHit,
	}
}

// execute runs one tool call and renders its outcome as a result string.
func (l *Loop) execute(ctx context.Context, reg *tools.Registry, name string, args map[string]any) string {
	var tool tools.Tool
	if reg != nil {
		tool, _ = reg.Get(name)
	}
	if tool == nil {
		l.logger.Warn("model requested unknown tool", "tool", name)
		return toolNotFound
	}

	out, err := tool.Invoke(ctx, args)
	if err != nil {
		l.logger.Warn("tool execution failed", "tool", name, "error", err)
		return toolErrorPrefix + err.Error()
	}
	return out
}

// sanitizeArgs overwrites identity arguments with the authenticated caller;
// the model never gets to act as someone else.
func sanitizeArgs(args map[string]any, userID string) map[string]any {
	if userID == "" || args == nil {
		return args
	}
	out := maps.Clone(args)
	for _, key := range []string{"user_id", "userId"} {
		if _, ok := out[key]; ok {
			out[key] = userID
		}
	}
	return out
}
