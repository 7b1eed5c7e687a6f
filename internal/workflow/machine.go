package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Interrupt is returned by a node to pause the machine with a resumable
// payload. It satisfies error so nodes signal it through their normal
// return path.
type Interrupt struct {
	Value string
}

func (i *Interrupt) Error() string {
	return fmt.Sprintf("node interrupt: %s", i.Value)
}

// nodeFunc executes one stage. It mutates the state in place; expected
// failures (model errors, missing messages) are recorded in State.Error
// rather than returned. A returned *Interrupt pauses the machine; any other
// error aborts the run.
type nodeFunc func(ctx context.Context, st *State, emit func(Event)) error

type stageDef struct {
	run  nodeFunc
	next func(st *State) Stage
}

type edge struct {
	from, to Stage
}

// Machine is the explicit state machine interpreter: a stage table, a set
// of pause edges, and a persist hook called after every transition.
type Machine struct {
	stages map[Stage]stageDef
	pause  map[edge]bool
}

// newMachine builds the conversation graph:
//
//	process_message -> generate_response -> buffer -> {process_message | end}
//
// with a pause on the buffer -> process_message edge, so every turn ends by
// handing control back to the caller instead of looping.
func newMachine(a *Assistant) *Machine {
	return &Machine{
		stages: map[Stage]stageDef{
			StageProcessMessage: {
				run:  a.processMessage,
				next: func(*State) Stage { return StageGenerateResponse },
			},
			StageGenerateResponse: {
				run:  a.generateResponse,
				next: func(*State) Stage { return StageBuffer },
			},
			StageBuffer: {
				run: a.buffer,
				next: func(st *State) Stage {
					if st.Finished {
						return StageEnd
					}
					return StageProcessMessage
				},
			},
		},
		pause: map[edge]bool{
			{from: StageBuffer, to: StageProcessMessage}: true,
		},
	}
}

// Run executes stages from st.Stage until the machine reaches StageEnd, a
// pause edge, or a node interrupt. persist is called with the current state
// after every transition; emit receives an event per transition plus any
// node-emitted custom events.
func (m *Machine) Run(ctx context.Context, st *State, persist func(*State) error, emit func(Event)) (*Interrupt, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, ok := m.stages[st.Stage]
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", st.Stage)
		}
		from := st.Stage

		err := def.run(ctx, st, emit)
		var pause *Interrupt
		if err != nil {
			var ni *Interrupt
			if !errors.As(err, &ni) {
				return nil, fmt.Errorf("stage %s: %w", from, err)
			}
			pause = ni
		}

		next := def.next(st)
		st.Stage = next
		if err := persist(st); err != nil {
			return nil, fmt.Errorf("persisting after %s: %w", from, err)
		}
		emit(UpdateEvent{Stage: from, State: st.Clone()})
		emit(ValueEvent{State: st.Clone()})

		if pause != nil {
			emit(InterruptEvent{Value: pause.Value})
			return pause, nil
		}
		if next == StageEnd || m.pause[edge{from: from, to: next}] {
			return nil, nil
		}
	}
}
