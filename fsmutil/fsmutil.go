// Package fsmutil holds helpers shared by the router's state machines.
package fsmutil

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that can fail to the fsm callback signature.
// A returned error is stored on the event and surfaces from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Journal records every state change as "src->dst".
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Record is an "enter_state" callback.
func (j *Journal) Record(_ context.Context, e *fsm.Event) {
	j.mu.Lock()
	j.entries = append(j.entries, e.Src+"->"+e.Dst)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded transitions.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}
