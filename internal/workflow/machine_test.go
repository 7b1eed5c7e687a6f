package workflow

import (
	"context"
	"errors"
	"testing"
)

// stubMachine builds a three-stage machine mirroring the conversation graph
// shape, with counters instead of real nodes.
func stubMachine(counts map[Stage]int) *Machine {
	count := func(stage Stage) nodeFunc {
		return func(ctx context.Context, st *State, emit func(Event)) error {
			counts[stage]++
			return nil
		}
	}
	return &Machine{
		stages: map[Stage]stageDef{
			StageProcessMessage: {
				run:  count(StageProcessMessage),
				next: func(*State) Stage { return StageGenerateResponse },
			},
			StageGenerateResponse: {
				run:  count(StageGenerateResponse),
				next: func(*State) Stage { return StageBuffer },
			},
			StageBuffer: {
				run: count(StageBuffer),
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

func noPersist(*State) error { return nil }

func TestMachinePausesAfterBuffer(t *testing.T) {
	counts := make(map[Stage]int)
	m := stubMachine(counts)
	st := &State{Stage: StageProcessMessage}

	pause, err := m.Run(context.Background(), st, noPersist, noEvents)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if pause != nil {
		t.Errorf("Run() pause = %v, want end-of-turn pause without payload", pause)
	}

	// One pass through each stage, then stop instead of looping.
	for _, stage := range []Stage{StageProcessMessage, StageGenerateResponse, StageBuffer} {
		if counts[stage] != 1 {
			t.Errorf("stage %s ran %d times, want 1", stage, counts[stage])
		}
	}
	if st.Stage != StageProcessMessage {
		t.Errorf("Stage = %s, want ready to re-enter process_message", st.Stage)
	}
}

func TestMachineEndsWhenFinished(t *testing.T) {
	counts := make(map[Stage]int)
	m := stubMachine(counts)
	st := &State{Stage: StageBuffer, Finished: true}

	if _, err := m.Run(context.Background(), st, noPersist, noEvents); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if st.Stage != StageEnd {
		t.Errorf("Stage = %s, want %s", st.Stage, StageEnd)
	}
}

func TestMachinePersistsEveryTransition(t *testing.T) {
	counts := make(map[Stage]int)
	m := stubMachine(counts)
	st := &State{Stage: StageProcessMessage}

	var persisted []Stage
	persist := func(s *State) error {
		persisted = append(persisted, s.Stage)
		return nil
	}
	if _, err := m.Run(context.Background(), st, persist, noEvents); err != nil {
		t.Fatal(err)
	}

	want := []Stage{StageGenerateResponse, StageBuffer, StageProcessMessage}
	if len(persisted) != len(want) {
		t.Fatalf("persisted %v, want %v", persisted, want)
	}
	for i := range want {
		if persisted[i] != want[i] {
			t.Errorf("persisted[%d] = %s, want %s", i, persisted[i], want[i])
		}
	}
}

func TestMachineNodeInterrupt(t *testing.T) {
	m := stubMachine(make(map[Stage]int))
	def := m.stages[StageGenerateResponse]
	def.run = func(ctx context.Context, st *State, emit func(Event)) error {
		return &Interrupt{Value: "need confirmation"}
	}
	m.stages[StageGenerateResponse] = def

	var events []Event
	st := &State{Stage: StageProcessMessage}
	pause, err := m.Run(context.Background(), st, noPersist, func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if pause == nil || pause.Value != "need confirmation" {
		t.Fatalf("pause = %v, want node interrupt payload", pause)
	}

	var sawInterrupt bool
	for _, ev := range events {
		if ie, ok := ev.(InterruptEvent); ok {
			sawInterrupt = true
			if ie.Value != "need confirmation" {
				t.Errorf("InterruptEvent.Value = %q", ie.Value)
			}
		}
	}
	if !sawInterrupt {
		t.Error("no InterruptEvent emitted")
	}
}

func TestMachineUnknownStage(t *testing.T) {
	m := stubMachine(make(map[Stage]int))
	st := &State{Stage: Stage("nope")}
	if _, err := m.Run(context.Background(), st, noPersist, noEvents); err == nil {
		t.Error("Run() accepted unknown stage")
	}
}

func TestMachinePersistFailureAborts(t *testing.T) {
	m := stubMachine(make(map[Stage]int))
	st := &State{Stage: StageProcessMessage}
	boom := errors.New("disk gone")
	_, err := m.Run(context.Background(), st, func(*State) error { return boom }, noEvents)
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want persist failure", err)
	}
}
