package workflow

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/loomlabs/loom/internal/llm"
)

// Stage identifies a state-machine node. The stored Stage is the next node
// to execute, so a resumed thread continues exactly where it paused.
type Stage string

const (
	StageProcessMessage   Stage = "process_message"
	StageGenerateResponse Stage = "generate_response"
	StageBuffer           Stage = "buffer"
	StageEnd              Stage = "end"
)

// State is the full conversation thread state. A snapshot of it is persisted
// after every stage transition; the serialized form is what the checkpoint
// store holds.
type State struct {
	ThreadID string        `json:"thread_id"`
	UserID   string        `json:"user_id"`
	Messages []llm.Message `json:"messages"`

	// MemoryContext is the retrieved long-term memory block injected into
	// the system prompt for the current turn.
	MemoryContext string `json:"memory_context,omitempty"`

	// ResponseType and ResponsePayload describe the formatted response of
	// the latest completed turn.
	ResponseType    string         `json:"response_type,omitempty"`
	ResponsePayload map[string]any `json:"response_payload,omitempty"`

	Finished     bool   `json:"finished"`
	IsProcessing bool   `json:"is_processing"`
	Stream       bool   `json:"stream"`
	Error        string `json:"error,omitempty"`

	// Extra carries caller-provided side-channel values that are not part
	// of the core field set.
	Extra map[string]string `json:"extra,omitempty"`

	Stage Stage `json:"stage"`
}

// Clone returns a deep copy, so emitted events and snapshots cannot alias
// the live state.
func (s *State) Clone() *State {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.Extra = maps.Clone(s.Extra)
	if s.ResponsePayload != nil {
		c.ResponsePayload = make(map[string]any, len(s.ResponsePayload))
		maps.Copy(c.ResponsePayload, s.ResponsePayload)
	}
	return &c
}

func encodeState(s *State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}
