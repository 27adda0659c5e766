package graph

import (
	"context"

	"github.com/looplab/fsm"
)

// State is the execution state of one node.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateAborted  State = "aborted"
	StateFinished State = "finished"
)

// Terminal reports whether the state ends an activation.
func (s State) Terminal() bool {
	return s == StateAborted || s == StateFinished
}

// Command drives a node between states.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandAbort  Command = "abort"
	CommandFinish Command = "finish"
	CommandClear  Command = "clear"
)

var nodeEvents = fsm.Events{
	{Name: string(CommandStart), Src: []string{string(StateIdle)}, Dst: string(StateRunning)},
	{Name: string(CommandPause), Src: []string{string(StateRunning)}, Dst: string(StatePaused)},
	{Name: string(CommandResume), Src: []string{string(StatePaused)}, Dst: string(StateRunning)},
	{Name: string(CommandAbort), Src: []string{string(StateIdle), string(StateRunning), string(StatePaused)}, Dst: string(StateAborted)},
	{Name: string(CommandFinish), Src: []string{string(StateRunning)}, Dst: string(StateFinished)},
	{Name: string(CommandClear), Src: []string{string(StateRunning), string(StatePaused), string(StateAborted), string(StateFinished)}, Dst: string(StateIdle)},
}

// newMachine builds the per-node state machine. onEnter observes every
// completed transition.
func newMachine(onEnter func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(string(StateIdle), nodeEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			if onEnter != nil {
				onEnter(State(e.Src), State(e.Dst))
			}
		},
	})
}

func currentState(m *fsm.FSM) State {
	return State(m.Current())
}
