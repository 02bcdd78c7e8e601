package framegraph

import "github.com/spaghettifunk/framegraph/engine/renderer/command"

// ExecutablePass is the work a pass records when the graph executes.
type ExecutablePass interface {
	Execute(reg *Registry, bb *Blackboard, list *command.List) error
}

// PassFunc adapts a function to ExecutablePass.
type PassFunc func(reg *Registry, bb *Blackboard, list *command.List) error

func (f PassFunc) Execute(reg *Registry, bb *Blackboard, list *command.List) error {
	return f(reg, bb, list)
}

var noop = PassFunc(func(*Registry, *Blackboard, *command.List) error { return nil })

type passNode struct {
	name     string
	index    int
	accesses []Access
	// edge indices, in insertion order
	incoming []int
	outgoing []int
}
