package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/tools"
)

// Tools returns the memory management tools backed by store. Every tool
// takes a user_id argument; the agent loop overwrites it with the
// authenticated caller before execution, so the model cannot read or write
// another user's memories.
func Tools(store *Store) []tools.Tool {
	return []tools.Tool{
		tools.New("search_memories",
			"Search the user's long-term memories for information relevant to a query.",
			objectSchema(map[string]*jsonschema.Schema{
				"query":   {Type: "string", Description: "What to look for."},
				"user_id": {Type: "string", Description: "The user whose memories to search."},
			}, "query", "user_id"),
			func(ctx context.Context, args map[string]any) (string, error) {
				query, _ := args["query"].(string)
				userID, _ := args["user_id"].(string)
				records, err := store.Search(ctx, userID, query)
				if err != nil {
					return "", err
				}
				if len(records) == 0 {
					return "no memories found", nil
				}
				return renderRecords(records), nil
			}),

		tools.New("add_memory",
			"Store a new fact about the user in long-term memory.",
			objectSchema(map[string]*jsonschema.Schema{
				"content": {Type: "string", Description: "The fact to remember."},
				"user_id": {Type: "string", Description: "The user the fact belongs to."},
			}, "content", "user_id"),
			func(ctx context.Context, args map[string]any) (string, error) {
				content, _ := args["content"].(string)
				userID, _ := args["user_id"].(string)
				if err := store.Add(ctx, userID, content, nil); err != nil {
					return "", err
				}
				return "memory stored", nil
			}),

		tools.New("get_all_memories",
			"List what is stored in the user's long-term memory, most recent first.",
			objectSchema(map[string]*jsonschema.Schema{
				"user_id": {Type: "string", Description: "The user whose memories to list."},
				"limit":   {Type: "integer", Description: "Maximum records to return. Defaults to 10."},
			}, "user_id"),
			func(ctx context.Context, args map[string]any) (string, error) {
				userID, _ := args["user_id"].(string)
				records, err := store.ListAll(ctx, userID, parseLimit(args))
				if err != nil {
					return "", err
				}
				if len(records) == 0 {
					return "no memories stored", nil
				}
				return renderRecords(records), nil
			}),

		tools.New("update_memory",
			"Replace the content of an existing memory.",
			objectSchema(map[string]*jsonschema.Schema{
				"memory_id": {Type: "string", Description: "The id of the memory to update."},
				"content":   {Type: "string", Description: "The new content."},
				"user_id":   {Type: "string", Description: "The user the memory belongs to."},
			}, "memory_id", "content", "user_id"),
			func(ctx context.Context, args map[string]any) (string, error) {
				id, err := parseMemoryID(args)
				if err != nil {
					return "", err
				}
				content, _ := args["content"].(string)
				userID, _ := args["user_id"].(string)
				if err := store.Update(ctx, userID, id, content); err != nil {
					return "", err
				}
				return "memory updated", nil
			}),

		tools.New("delete_memory",
			"Delete a memory by id.",
			objectSchema(map[string]*jsonschema.Schema{
				"memory_id": {Type: "string", Description: "The id of the memory to delete."},
				"user_id":   {Type: "string", Description: "The user the memory belongs to."},
			}, "memory_id", "user_id"),
			func(ctx context.Context, args map[string]any) (string, error) {
				id, err := parseMemoryID(args)
				if err != nil {
					return "", err
				}
				userID, _ := args["user_id"].(string)
				if err := store.Delete(ctx, userID, id); err != nil {
					return "", err
				}
				return "memory deleted", nil
			}),
	}
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// parseLimit reads the optional limit argument. Models send JSON numbers,
// which decode as float64. Zero lets the store apply its default.
func parseLimit(args map[string]any) int {
	switch v := args["limit"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func parseMemoryID(args map[string]any) (uuid.UUID, error) {
	raw, _ := args["memory_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid memory_id %q: %w", raw, err)
	}
	return id, nil
}

func renderRecords(records []Record) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", rec.ID, rec.Content)
	}
	return b.String()
}
