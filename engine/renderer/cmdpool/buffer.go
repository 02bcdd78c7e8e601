package cmdpool

import (
	"errors"
	"fmt"
)

// State is the lifecycle of one command buffer.
type State int

const (
	StateFree State = iota
	StateRecording
	StateRecorded
	StateSubmitted
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateRecording:
		return "recording"
	case StateRecorded:
		return "recorded"
	case StateSubmitted:
		return "submitted"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrInvalidTransition = errors.New("invalid command buffer state transition")

// Buffer wraps a native command buffer of type B.
type Buffer[B any] struct {
	Handle B
	state  State
	owner  chan<- *Buffer[B]
	worker WorkerID
}

func (b *Buffer[B]) State() State {
	return b.state
}

func (b *Buffer[B]) Worker() WorkerID {
	return b.worker
}

func (b *Buffer[B]) transition(from, to State) error {
	if b.state != from {
		return fmt.Errorf("%s -> %s from state %s: %w", from, to, b.state, ErrInvalidTransition)
	}
	b.state = to
	return nil
}

func (b *Buffer[B]) Begin() error {
	return b.transition(StateFree, StateRecording)
}

func (b *Buffer[B]) End() error {
	return b.transition(StateRecording, StateRecorded)
}

func (b *Buffer[B]) MarkSubmitted() error {
	return b.transition(StateRecorded, StateSubmitted)
}

func (b *Buffer[B]) MarkComplete() error {
	return b.transition(StateSubmitted, StateComplete)
}

// Release hands the buffer back to the pool of the worker that allocated it.
// It may be called from any goroutine. A submitted buffer whose fence never
// signalled cannot be released.
func (b *Buffer[B]) Release() error {
	if b.state == StateSubmitted {
		return fmt.Errorf("release of an in-flight buffer: %w", ErrInvalidTransition)
	}
	if b.owner == nil {
		return fmt.Errorf("buffer released twice: %w", ErrInvalidTransition)
	}
	owner := b.owner
	b.owner = nil
	b.state = StateFree
	owner <- b
	return nil
}
