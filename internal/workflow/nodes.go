package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
	"github.com/loomlabs/loom/internal/memory"
	"github.com/loomlabs/loom/internal/react"
	"github.com/loomlabs/loom/internal/tools"
)

// recentWindow bounds how much conversation history is replayed to the
// model each turn.
const recentWindow = 10

const systemPrompt = `You are a personal assistant with access to tools and a
long-term memory about the user. Use tools for live information instead of
relying on memory or conversation history. Use the user's stored preferences
to give specific, personalized answers. If you cannot find something, say so
instead of inventing it.

Respond with a single JSON object of the form
{"message_type": "text", "text": "<your reply>"}.`

// Assistant holds the node implementations for the conversation machine.
// All dependencies are injected at construction.
type Assistant struct {
	loop          *react.Loop
	memory        *memory.Store
	registry      *tools.Registry
	model         string
	maxIterations int
	logger        log.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewAssistant wires the conversation nodes. maxIterations bounds the tool
// loop; zero means the loop's default.
func NewAssistant(loop *react.Loop, store *memory.Store, registry *tools.Registry, model string, maxIterations int, logger log.Logger) *Assistant {
	return &Assistant{
		loop:          loop,
		memory:        store,
		registry:      registry,
		model:         model,
		maxIterations: maxIterations,
		logger:        logger,
		now:           time.Now,
	}
}

// processMessage prepares a turn: it retrieves memory context relevant to
// the latest user message and clears the previous turn's error. The user
// message itself is appended by the workflow op before the machine runs.
func (a *Assistant) processMessage(ctx context.Context, st *State, emit func(Event)) error {
	if len(st.Messages) == 0 {
		st.Error = "no messages to process"
		return nil
	}
	last := st.Messages[len(st.Messages)-1]
	if last.Content != "" {
		st.MemoryContext = a.memory.Context(ctx, st.UserID, last.Content)
	}
	st.IsProcessing = true
	st.Error = ""
	a.logger.Info("message processed",
		"thread_id", st.ThreadID, "user_id", st.UserID,
		"has_memory_context", st.MemoryContext != "")
	return nil
}

// generateResponse runs the tool loop and records the formatted response.
// Generation failures are stored in State.Error with IsProcessing cleared
// and Finished left unset, so the caller can retry with another chat call;
// the already-appended user message is never dropped.
func (a *Assistant) generateResponse(ctx context.Context, st *State, emit func(Event)) error {
	if len(st.Messages) == 0 {
		st.Error = "no messages to generate response for"
		st.IsProcessing = false
		return nil
	}

	msgs := []llm.Message{llm.System(a.systemMessage(st))}
	recent := st.Messages
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	msgs = append(msgs, recent...)

	result, err := a.loop.Run(ctx, react.Params{
		Model:         a.model,
		Messages:      msgs,
		Registry:      a.registry,
		UserID:        st.UserID,
		MaxIterations: a.maxIterations,
		JSONMode:      true,
	})
	if err != nil {
		a.logger.Error("response generation failed",
			"thread_id", st.ThreadID, "user_id", st.UserID, "error", err)
		st.Error = fmt.Sprintf("error generating response: %s", err)
		st.IsProcessing = false
		return nil
	}

	responseType, payload := formatResponse(result.JSON, result.Content)
	userMessage := st.Messages[len(st.Messages)-1]
	st.Messages = append(st.Messages, llm.Assistant(result.Content))
	st.ResponseType = responseType
	st.ResponsePayload = payload
	st.IsProcessing = false
	st.Error = ""

	if st.Stream {
		emit(CustomEvent{Name: "response", Payload: payload})
	}

	a.remember(ctx, st, userMessage.Content, result.Content)
	return nil
}

// buffer is the pause point between turns.
func (a *Assistant) buffer(ctx context.Context, st *State, emit func(Event)) error {
	return nil
}

func (a *Assistant) systemMessage(st *State) string {
	content := systemPrompt + "\n\n"
	if len(st.Extra) > 0 {
		if details, err := json.Marshal(st.Extra); err == nil {
			content += fmt.Sprintf("User details: %s\n\n", details)
		}
	}
	content += fmt.Sprintf("Current date and time: %s\n\n", a.now().Format(time.RFC3339))
	if st.MemoryContext != "" {
		content += fmt.Sprintf("Previous relevant information:\n%s\n\n", st.MemoryContext)
	}
	return content
}

// remember stores the completed turn in long-term memory. Best effort: the
// turn already succeeded, a memory failure must not fail it retroactively.
func (a *Assistant) remember(ctx context.Context, st *State, userText, assistantText string) {
	turn := fmt.Sprintf("user: %s\nassistant: %s", userText, assistantText)
	err := a.memory.Add(ctx, st.UserID, turn, map[string]string{
		"source":    "conversation",
		"thread_id": st.ThreadID,
		"timestamp": a.now().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.Warn("storing turn in memory failed",
			"thread_id", st.ThreadID, "user_id", st.UserID, "error", err)
	}
}

// formatResponse turns the model's JSON document into the response payload.
// Anything that is not an object with a message_type degrades to a plain
// text payload carrying the raw content.
func formatResponse(doc json.RawMessage, raw string) (string, map[string]any) {
	var payload map[string]any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &payload); err != nil {
			payload = nil
		}
	}
	if len(payload) == 0 {
		return "text", map[string]any{"message_type": "text", "text": raw}
	}
	responseType, _ := payload["message_type"].(string)
	if responseType == "" {
		responseType = "text"
		payload["message_type"] = "text"
	}
	if _, ok := payload["text"]; !ok && responseType == "text" {
		payload["text"] = raw
	}
	return responseType, payload
}
