// Package workflow implements the resumable conversation state machine.
// Each turn is one pass through an explicit stage graph; a snapshot of the
// thread state is persisted after every transition, so a thread can be
// picked up from its checkpoint at any time.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/checkpoint"
	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
)

// ErrAlreadyFinished rejects mutation of a terminated thread.
var ErrAlreadyFinished = errors.New("chat has already ended")

// Outcome tags how a turn ended.
type Outcome string

const (
	// OutcomeInitialEvent: a start with no message, state was only seeded.
	OutcomeInitialEvent Outcome = "initial_event"
	// OutcomeNodeInterrupt: a node paused with a resumable payload.
	OutcomeNodeInterrupt Outcome = "node_interrupt"
	// OutcomeWorkflowInterrupt: the machine paused at the end-of-turn edge.
	OutcomeWorkflowInterrupt Outcome = "workflow_interrupt"
)

// Options carries per-call values for start and chat.
type Options struct {
	// UserID is the authenticated caller; used only by Start, a thread's
	// owner never changes.
	UserID string

	// Extra values are merged into the thread's side-map.
	Extra map[string]string
}

// Workflow exposes the conversation operations over one machine and one
// checkpoint store.
type Workflow struct {
	name    string
	machine *Machine
	store   checkpoint.Store
	logger  log.Logger
}

// New assembles a workflow around the assistant's nodes.
func New(name string, assistant *Assistant, store checkpoint.Store, logger log.Logger) *Workflow {
	return &Workflow{
		name:    name,
		machine: newMachine(assistant),
		store:   store,
		logger:  logger,
	}
}

// Name reports the workflow's routing name.
func (w *Workflow) Name() string { return w.name }

func newThreadID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (w *Workflow) initialState(threadID string, opts Options) *State {
	return &State{
		ThreadID: threadID,
		UserID:   opts.UserID,
		Extra:    maps.Clone(opts.Extra),
		Stage:    StageProcessMessage,
	}
}

func (w *Workflow) persist(ctx context.Context, st *State) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	return w.store.Put(ctx, st.ThreadID, data)
}

func (w *Workflow) load(ctx context.Context, threadID string) (*State, error) {
	data, err := w.store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread %q: %w", threadID, err)
	}
	return decodeState(data)
}

// run executes the machine from the state's current stage and persists the
// final snapshot with IsProcessing cleared, whatever happened. A hard
// machine error is recorded in the state so the thread stays resumable.
func (w *Workflow) run(ctx context.Context, st *State, emit func(Event)) (*Interrupt, error) {
	pause, err := w.machine.Run(ctx, st, func(s *State) error {
		return w.persist(ctx, s)
	}, emit)
	if err != nil {
		st.Error = err.Error()
	}
	st.IsProcessing = false
	if perr := w.persist(ctx, st); perr != nil && err == nil {
		err = perr
	}
	return pause, err
}

func outcomeOf(pause *Interrupt) (Outcome, string) {
	if pause != nil {
		return OutcomeNodeInterrupt, pause.Value
	}
	return OutcomeWorkflowInterrupt, ""
}

func noEvents(Event) {}

// Start allocates a thread and runs its first turn. With an empty message
// it only seeds and persists the initial state.
func (w *Workflow) Start(ctx context.Context, message string, opts Options) (string, *State, Outcome, string, error) {
	threadID := newThreadID()
	st := w.initialState(threadID, opts)

	if message == "" {
		if err := w.persist(ctx, st); err != nil {
			return "", nil, "", "", err
		}
		w.logger.Info("thread started", "workflow", w.name, "thread_id", threadID, "user_id", st.UserID)
		return threadID, st, OutcomeInitialEvent, "", nil
	}

	st.Messages = append(st.Messages, llm.User(message))
	st.IsProcessing = true
	pause, err := w.run(ctx, st, noEvents)
	if err != nil {
		return "", nil, "", "", err
	}
	outcome, value := outcomeOf(pause)
	w.logger.Info("thread started", "workflow", w.name, "thread_id", threadID,
		"user_id", st.UserID, "outcome", string(outcome))
	return threadID, st, outcome, value, nil
}

// Chat runs one more turn on an existing thread. The user message is
// appended before the machine runs, so it survives even when generation
// fails; a finished thread is rejected without any mutation.
func (w *Workflow) Chat(ctx context.Context, threadID, message string, opts Options) (*State, Outcome, string, error) {
	st, err := w.load(ctx, threadID)
	if err != nil {
		return nil, "", "", err
	}
	if st.Finished {
		return nil, "", "", fmt.Errorf("thread %q: %w", threadID, ErrAlreadyFinished)
	}

	st.IsProcessing = true
	st.Stream = false
	if message != "" {
		st.Messages = append(st.Messages, llm.User(message))
	}
	if len(opts.Extra) > 0 {
		if st.Extra == nil {
			st.Extra = make(map[string]string, len(opts.Extra))
		}
		maps.Copy(st.Extra, opts.Extra)
	}

	pause, err := w.run(ctx, st, noEvents)
	if err != nil {
		return nil, "", "", err
	}
	outcome, value := outcomeOf(pause)
	return st, outcome, value, nil
}

// Resume continues a thread past a pending interrupt, optionally injecting
// a message.
func (w *Workflow) Resume(ctx context.Context, threadID, message string) (*State, error) {
	st, err := w.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.Finished {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrAlreadyFinished)
	}

	st.IsProcessing = true
	if message != "" {
		st.Messages = append(st.Messages, llm.User(message))
	}
	if _, err := w.run(ctx, st, noEvents); err != nil {
		return nil, err
	}
	return st, nil
}

// GetState returns the latest persisted snapshot without touching it.
func (w *Workflow) GetState(ctx context.Context, threadID string) (*State, error) {
	return w.load(ctx, threadID)
}

// StartStream is Start with every intermediate event emitted on the
// returned channel. The channel ends with a DoneEvent and is then closed;
// the final snapshot is persisted with IsProcessing=false after the last
// event.
func (w *Workflow) StartStream(ctx context.Context, message string, opts Options) (string, <-chan Event) {
	threadID := newThreadID()
	ch := make(chan Event)

	go func() {
		defer close(ch)
		emit := chanEmitter(ctx, ch)

		st := w.initialState(threadID, opts)
		st.Stream = true

		if message == "" {
			err := w.persist(ctx, st)
			emit(ValueEvent{State: st.Clone()})
			emit(DoneEvent{State: st.Clone(), Outcome: OutcomeInitialEvent, Err: err})
			return
		}

		st.Messages = append(st.Messages, llm.User(message))
		st.IsProcessing = true
		pause, err := w.run(ctx, st, emit)
		outcome, value := outcomeOf(pause)
		emit(DoneEvent{State: st.Clone(), Outcome: outcome, Interrupt: value, Err: err})
	}()

	return threadID, ch
}

// ChatStream is Chat with intermediate events. The finished guard and the
// thread lookup fail synchronously, before any goroutine is started.
func (w *Workflow) ChatStream(ctx context.Context, threadID, message string, opts Options) (<-chan Event, error) {
	st, err := w.load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if st.Finished {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrAlreadyFinished)
	}

	st.IsProcessing = true
	st.Stream = true
	if message != "" {
		st.Messages = append(st.Messages, llm.User(message))
	}
	if len(opts.Extra) > 0 {
		if st.Extra == nil {
			st.Extra = make(map[string]string, len(opts.Extra))
		}
		maps.Copy(st.Extra, opts.Extra)
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		emit := chanEmitter(ctx, ch)
		pause, err := w.run(ctx, st, emit)
		outcome, value := outcomeOf(pause)
		emit(DoneEvent{State: st.Clone(), Outcome: outcome, Interrupt: value, Err: err})
	}()
	return ch, nil
}

// chanEmitter sends events to ch, dropping them once the caller's context
// is gone so an abandoned stream cannot leak the runner goroutine.
func chanEmitter(ctx context.Context, ch chan<- Event) func(Event) {
	return func(ev Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
}
