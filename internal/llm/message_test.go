package llm

import (
	"fmt"
	"testing"
)

func TestAppendToolCallSequentialIDs(t *testing.T) {
	resp := &Response{}

	// Simulate a response delivered across two callback invocations, each
	// carrying its own batch of tool calls.
	for _, batch := range [][]string{
		{"search_memories", "add_memory"},
		{"get_all_memories"},
	} {
		for _, name := range batch {
			resp.appendToolCall(name, map[string]any{"user_id": "u1"})
		}
	}

	if len(resp.ToolCalls) != 3 {
		t.Fatalf("ToolCalls = %d, want 3", len(resp.ToolCalls))
	}
	seen := make(map[string]bool)
	for i, tc := range resp.ToolCalls {
		want := fmt.Sprintf("call_%d", i)
		if tc.ID != want {
			t.Errorf("ToolCalls[%d].ID = %q, want %q", i, tc.ID, want)
		}
		if seen[tc.ID] {
			t.Errorf("duplicate tool call id %q", tc.ID)
		}
		seen[tc.ID] = true
	}
}
