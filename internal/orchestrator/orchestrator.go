// Package orchestrator routes conversation operations to registered
// workflows by name.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomlabs/loom/internal/workflow"
)

// ErrNotFound indicates no workflow is registered under the given name.
var ErrNotFound = errors.New("workflow not found")

// Conversation is the operation surface a workflow exposes.
// *workflow.Workflow satisfies it.
type Conversation interface {
	Name() string
	Start(ctx context.Context, message string, opts workflow.Options) (string, *workflow.State, workflow.Outcome, string, error)
	Chat(ctx context.Context, threadID, message string, opts workflow.Options) (*workflow.State, workflow.Outcome, string, error)
	Resume(ctx context.Context, threadID, message string) (*workflow.State, error)
	GetState(ctx context.Context, threadID string) (*workflow.State, error)
	StartStream(ctx context.Context, message string, opts workflow.Options) (string, <-chan workflow.Event)
	ChatStream(ctx context.Context, threadID, message string, opts workflow.Options) (<-chan workflow.Event, error)
}

// Orchestrator holds the workflow registry. Registration happens at
// assembly time; lookups afterwards are read-only, so no locking is needed.
type Orchestrator struct {
	workflows map[string]Conversation
}

// New creates an orchestrator over the given workflows.
func New(workflows ...Conversation) *Orchestrator {
	o := &Orchestrator{workflows: make(map[string]Conversation, len(workflows))}
	for _, wf := range workflows {
		o.workflows[wf.Name()] = wf
	}
	return o
}

func (o *Orchestrator) lookup(name string) (Conversation, error) {
	wf, ok := o.workflows[name]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", name, ErrNotFound)
	}
	return wf, nil
}

// Start starts a new thread on the named workflow.
func (o *Orchestrator) Start(ctx context.Context, name, message string, opts workflow.Options) (string, *workflow.State, workflow.Outcome, string, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return "", nil, "", "", err
	}
	return wf.Start(ctx, message, opts)
}

// Chat runs one turn on an existing thread of the named workflow.
func (o *Orchestrator) Chat(ctx context.Context, name, threadID, message string, opts workflow.Options) (*workflow.State, workflow.Outcome, string, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return nil, "", "", err
	}
	return wf.Chat(ctx, threadID, message, opts)
}

// Resume continues a paused thread of the named workflow.
func (o *Orchestrator) Resume(ctx context.Context, name, threadID, message string) (*workflow.State, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	return wf.Resume(ctx, threadID, message)
}

// GetState fetches the latest snapshot of a thread.
func (o *Orchestrator) GetState(ctx context.Context, name, threadID string) (*workflow.State, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	return wf.GetState(ctx, threadID)
}

// StartStream starts a new thread and streams its events.
func (o *Orchestrator) StartStream(ctx context.Context, name, message string, opts workflow.Options) (string, <-chan workflow.Event, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return "", nil, err
	}
	threadID, ch := wf.StartStream(ctx, message, opts)
	return threadID, ch, nil
}

// ChatStream runs one streaming turn on an existing thread.
func (o *Orchestrator) ChatStream(ctx context.Context, name, threadID, message string, opts workflow.Options) (<-chan workflow.Event, error) {
	wf, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	return wf.ChatStream(ctx, threadID, message, opts)
}

// Names lists the registered workflow names.
func (o *Orchestrator) Names() []string {
	names := make([]string, 0, len(o.workflows))
	for name := range o.workflows {
		names = append(names, name)
	}
	return names
}
