package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/loomlabs/loom/internal/llm"
)

// ErrDuplicateTool indicates a tool name registered twice.
var ErrDuplicateTool = errors.New("duplicate tool")

// Registry holds the tools available to the agent loop.
//
// Thread safety: safe for concurrent use. Registration usually happens at
// startup, lookup on every turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Tool names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool with the given name, or false if unknown.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defs returns the model-facing definitions of all registered tools,
// ordered by name.
func (r *Registry) Defs() []llm.ToolDef {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, Def(r.tools[name]))
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
