package workflow

// Event is one item on a streaming run's channel. The channel carries zero
// or more ValueEvent/UpdateEvent/CustomEvent/InterruptEvent values and is
// closed after a final DoneEvent.
type Event interface {
	isEvent()
}

// ValueEvent carries the full state after a stage transition.
type ValueEvent struct {
	State *State
}

// UpdateEvent names the stage that just executed.
type UpdateEvent struct {
	Stage Stage
	State *State
}

// CustomEvent is emitted by a node mid-execution, e.g. the formatted
// response payload before the turn's final snapshot.
type CustomEvent struct {
	Name    string
	Payload any
}

// InterruptEvent signals a node-level pause carrying a resumable value.
type InterruptEvent struct {
	Value string
}

// DoneEvent is the last event on every stream.
type DoneEvent struct {
	State     *State
	Outcome   Outcome
	Interrupt string
	Err       error
}

func (ValueEvent) isEvent()     {}
func (UpdateEvent) isEvent()    {}
func (CustomEvent) isEvent()    {}
func (InterruptEvent) isEvent() {}
func (DoneEvent) isEvent()      {}
