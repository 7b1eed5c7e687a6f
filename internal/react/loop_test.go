package react

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
	"github.com/loomlabs/loom/internal/tools"
)

// fakeCompleter scripts a sequence of responses and errors.
type fakeCompleter struct {
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &llm.Response{Content: "done"}, nil
}

func call(id, name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func registryWith(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, tl := range ts {
		if err := r.Register(tl); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}
	return r
}

func TestRunPlainAnswer(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{{Content: "hello"}}}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("hi")},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Content != "hello" || res.Iterations != 1 || res.BoundHit {
		t.Errorf("Run() = %+v", res)
	}
	if got := res.Messages[len(res.Messages)-1]; got.Role != llm.RoleAssistant || got.Content != "hello" {
		t.Errorf("final message = %+v", got)
	}
}

func TestRunExecutesTools(t *testing.T) {
	echo := tools.New("echo", "echo", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprint(args["text"]), nil
	})

	fake := &fakeCompleter{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "echo", map[string]any{"text": "ping"})}},
		{Content: "the tool said ping"},
	}}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("run echo")},
		Registry: registryWith(t, echo),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Content != "the tool said ping" || res.Iterations != 2 {
		t.Errorf("Run() = %+v", res)
	}

	// The second model call must see the assistant tool-call message
	// followed by exactly one result per call id.
	second := fake.requests[1].Messages
	assistant := second[len(second)-2]
	result := second[len(second)-1]
	if assistant.Role != llm.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", assistant)
	}
	if result.Role != llm.RoleTool || result.ToolCallID != "c1" || result.Content != "ping" {
		t.Errorf("tool result = %+v", result)
	}
}

func TestRunCallResultPairing(t *testing.T) {
	noop := tools.New("noop", "noop", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	})

	fake := &fakeCompleter{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{
			call("a", "noop", nil),
			call("b", "noop", nil),
			call("c", "missing", nil),
		}},
		{Content: "done"},
	}}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		Registry: registryWith(t, noop),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	results := make(map[string]string)
	for _, m := range res.Messages {
		if m.Role == llm.RoleTool {
			if _, dup := results[m.ToolCallID]; dup {
				t.Errorf("duplicate result for call %q", m.ToolCallID)
			}
			results[m.ToolCallID] = m.Content
		}
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %v", len(results), results)
	}
	if results["c"] != "tool not found" {
		t.Errorf("unknown tool result = %q, want %q", results["c"], "tool not found")
	}
}

func TestRunToolErrorBecomesResult(t *testing.T) {
	failing := tools.New("explode", "always fails", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("boom")
	})

	fake := &fakeCompleter{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "explode", nil)}},
		{Content: "recovered"},
	}}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		Registry: registryWith(t, failing),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Content != "recovered" {
		t.Errorf("Content = %q", res.Content)
	}

	var toolResult string
	for _, m := range res.Messages {
		if m.Role == llm.RoleTool {
			toolResult = m.Content
		}
	}
	if toolResult != "error executing tool: boom" {
		t.Errorf("tool result = %q, want error string", toolResult)
	}
}

func TestRunIterationBound(t *testing.T) {
	// A model that always requests another tool call must be cut off after
	// exactly MaxIterations model calls.
	greedy := tools.New("again", "asks for more", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "more", nil
	})

	var responses []*llm.Response
	for range 20 {
		responses = append(responses, &llm.Response{
			Content:   "still working",
			ToolCalls: []llm.ToolCall{call("c", "again", nil)},
		})
	}
	fake := &fakeCompleter{responses: responses}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:         "openai/gpt-4o",
		Messages:      []llm.Message{llm.User("go")},
		Registry:      registryWith(t, greedy),
		MaxIterations: 4,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if fake.calls != 4 {
		t.Errorf("model calls = %d, want 4", fake.calls)
	}
	if !res.BoundHit || res.Iterations != 4 {
		t.Errorf("Run() = %+v, want bound hit after 4 iterations", res)
	}
	if res.Content != "still working" {
		t.Errorf("Content = %q, want last response verbatim", res.Content)
	}
}

func TestRunDefaultBound(t *testing.T) {
	greedy := tools.New("again", "asks for more", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "more", nil
	})
	var responses []*llm.Response
	for range 30 {
		responses = append(responses, &llm.Response{ToolCalls: []llm.ToolCall{call("c", "again", nil)}})
	}
	fake := &fakeCompleter{responses: responses}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		Registry: registryWith(t, greedy),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if fake.calls != DefaultMaxIterations || !res.BoundHit {
		t.Errorf("model calls = %d, bound hit = %v; want default bound %d",
			fake.calls, res.BoundHit, DefaultMaxIterations)
	}
}

func TestRunModelErrorMidLoop(t *testing.T) {
	noop := tools.New("noop", "noop", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	})

	fake := &fakeCompleter{
		responses: []*llm.Response{
			{Content: "partial answer", ToolCalls: []llm.ToolCall{call("c1", "noop", nil)}},
			nil,
		},
		errs: []error{nil, errors.New("upstream 500")},
	}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		Registry: registryWith(t, noop),
	})
	if err != nil {
		t.Fatalf("Run() error: %v, want degraded result", err)
	}
	if res.Content != "partial answer" {
		t.Errorf("Content = %q, want last successful response", res.Content)
	}
}

func TestRunModelErrorFirstCall(t *testing.T) {
	fake := &fakeCompleter{errs: []error{errors.New("upstream 500")}}
	loop := NewLoop(fake, log.NewNop())

	_, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
	})
	if !errors.Is(err, llm.ErrCompletionFailed) {
		t.Errorf("Run() err = %v, want ErrCompletionFailed", err)
	}
}

func TestRunSanitizesUserID(t *testing.T) {
	var seen map[string]any
	spy := tools.New("lookup", "looks up user data", nil, func(ctx context.Context, args map[string]any) (string, error) {
		seen = args
		return "ok", nil
	})

	fake := &fakeCompleter{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "lookup", map[string]any{
			"user_id": "someone-else",
			"userId":  "also-someone-else",
			"query":   "preferences",
		})}},
		{Content: "done"},
	}}
	loop := NewLoop(fake, log.NewNop())

	if _, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		Registry: registryWith(t, spy),
		UserID:   "caller-123",
	}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if seen["user_id"] != "caller-123" || seen["userId"] != "caller-123" {
		t.Errorf("identity args not overwritten: %v", seen)
	}
	if seen["query"] != "preferences" {
		t.Errorf("unrelated arg mangled: %v", seen)
	}
}

func TestRunJSONModePassthrough(t *testing.T) {
	fake := &fakeCompleter{responses: []*llm.Response{{
		Content: `{"response_type": "text"}`,
		JSON:    []byte(`{"response_type": "text"}`),
	}}}
	loop := NewLoop(fake, log.NewNop())

	res, err := loop.Run(context.Background(), Params{
		Model:    "openai/gpt-4o",
		Messages: []llm.Message{llm.User("go")},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !fake.requests[0].JSONMode {
		t.Error("JSONMode not propagated to the model request")
	}
	if !strings.Contains(string(res.JSON), "response_type") {
		t.Errorf("JSON = %s", res.JSON)
	}
}
