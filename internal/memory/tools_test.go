package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/loomlabs/loom/internal/tools"
)

func memoryToolbox(t *testing.T) (*fakeIndex, map[string]tools.Tool) {
	t.Helper()
	index := &fakeIndex{}
	store := newTestStore(t, index)

	byName := make(map[string]tools.Tool)
	for _, tool := range Tools(store) {
		byName[tool.Name()] = tool
	}
	return index, byName
}

func TestToolsExposesFullSet(t *testing.T) {
	_, byName := memoryToolbox(t)

	for _, name := range []string{
		"search_memories", "add_memory", "get_all_memories", "update_memory", "delete_memory",
	} {
		tool, ok := byName[name]
		if !ok {
			t.Fatalf("missing tool %q", name)
		}
		schema := tool.Schema()
		var hasUserID bool
		for _, req := range schema.Required {
			if req == "user_id" {
				hasUserID = true
			}
		}
		if !hasUserID {
			t.Errorf("tool %q does not require user_id", name)
		}
	}
}

func TestAddAndSearchTools(t *testing.T) {
	_, byName := memoryToolbox(t)
	ctx := context.Background()

	out, err := byName["add_memory"].Invoke(ctx, map[string]any{
		"content": "prefers window seats",
		"user_id": "u1",
	})
	if err != nil {
		t.Fatalf("add_memory error: %v", err)
	}
	if out != "memory stored" {
		t.Errorf("add_memory = %q", out)
	}

	out, err = byName["search_memories"].Invoke(ctx, map[string]any{
		"query":   "seats",
		"user_id": "u1",
	})
	if err != nil {
		t.Fatalf("search_memories error: %v", err)
	}
	if !strings.Contains(out, "prefers window seats") {
		t.Errorf("search_memories = %q", out)
	}
}

func TestSearchToolEmptyResult(t *testing.T) {
	_, byName := memoryToolbox(t)

	out, err := byName["search_memories"].Invoke(context.Background(), map[string]any{
		"query":   "anything",
		"user_id": "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "no memories found" {
		t.Errorf("search_memories = %q", out)
	}
}

func TestGetAllMemoriesTool(t *testing.T) {
	index, byName := memoryToolbox(t)
	ctx := context.Background()

	out, err := byName["get_all_memories"].Invoke(ctx, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "no memories stored" {
		t.Errorf("get_all_memories = %q", out)
	}

	store := newTestStore(t, index)
	if err := store.Add(ctx, "u1", "enjoys hiking", nil); err != nil {
		t.Fatal(err)
	}

	out, err = byName["get_all_memories"].Invoke(ctx, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, index.records[0].ID.String()) || !strings.Contains(out, "enjoys hiking") {
		t.Errorf("get_all_memories = %q", out)
	}
}

func TestGetAllMemoriesToolLimit(t *testing.T) {
	index, byName := memoryToolbox(t)
	ctx := context.Background()

	store := newTestStore(t, index)
	for i := range DefaultListLimit + 5 {
		if err := store.Add(ctx, "u1", fmt.Sprintf("fact %d", i), nil); err != nil {
			t.Fatal(err)
		}
	}

	// JSON decoding hands the handler a float64.
	out, err := byName["get_all_memories"].Invoke(ctx, map[string]any{
		"user_id": "u1",
		"limit":   float64(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, "\n") + 1; got != 2 {
		t.Errorf("get_all_memories(limit=2) returned %d records: %q", got, out)
	}

	out, err = byName["get_all_memories"].Invoke(ctx, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, "\n") + 1; got != DefaultListLimit {
		t.Errorf("get_all_memories() returned %d records, want default %d", got, DefaultListLimit)
	}
}

func TestUpdateAndDeleteTools(t *testing.T) {
	index, byName := memoryToolbox(t)
	ctx := context.Background()

	if _, err := byName["add_memory"].Invoke(ctx, map[string]any{
		"content": "original fact",
		"user_id": "u1",
	}); err != nil {
		t.Fatal(err)
	}
	id := index.records[0].ID.String()

	out, err := byName["update_memory"].Invoke(ctx, map[string]any{
		"memory_id": id,
		"content":   "revised fact",
		"user_id":   "u1",
	})
	if err != nil {
		t.Fatalf("update_memory error: %v", err)
	}
	if out != "memory updated" {
		t.Errorf("update_memory = %q", out)
	}
	if index.records[0].Content != "revised fact" {
		t.Errorf("content = %q after update", index.records[0].Content)
	}

	out, err = byName["delete_memory"].Invoke(ctx, map[string]any{
		"memory_id": id,
		"user_id":   "u1",
	})
	if err != nil {
		t.Fatalf("delete_memory error: %v", err)
	}
	if out != "memory deleted" {
		t.Errorf("delete_memory = %q", out)
	}
	if len(index.records) != 0 {
		t.Errorf("%d records remain after delete", len(index.records))
	}
}

func TestMemoryToolsRejectBadID(t *testing.T) {
	_, byName := memoryToolbox(t)
	ctx := context.Background()

	for _, name := range []string{"update_memory", "delete_memory"} {
		_, err := byName[name].Invoke(ctx, map[string]any{
			"memory_id": "not-a-uuid",
			"content":   "x",
			"user_id":   "u1",
		})
		if err == nil {
			t.Errorf("%s accepted malformed memory_id", name)
		}
	}
}
