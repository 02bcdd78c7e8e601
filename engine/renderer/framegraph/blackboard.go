package framegraph

import "reflect"

// Blackboard carries ad hoc per-frame data between passes, one value per type.
// The zero value is ready to use.
type Blackboard struct {
	values map[reflect.Type]any
}

func NewBlackboard() *Blackboard {
	return &Blackboard{values: make(map[reflect.Type]any)}
}

// Put stores v, replacing any previous value of type T.
func Put[T any](bb *Blackboard, v T) {
	if bb.values == nil {
		bb.values = make(map[reflect.Type]any)
	}
	bb.values[reflect.TypeFor[T]()] = v
}

func Get[T any](bb *Blackboard) (T, bool) {
	v, ok := bb.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func (bb *Blackboard) Len() int {
	return len(bb.values)
}
