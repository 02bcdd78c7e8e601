package framegraph

import (
	"fmt"

	"github.com/google/uuid"
)

// ResourceIndex identifies a logical resource within one graph. Indices are
// handed out sequentially and never reused.
type ResourceIndex uint32

type Usage uint8

const (
	UsageRead Usage = iota
	UsageWrite
)

func (u Usage) String() string {
	if u == UsageWrite {
		return "write"
	}
	return "read"
}

type ResourceKind uint8

const (
	KindImage ResourceKind = iota
	KindBuffer
	KindFramebuffer
)

func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	case KindFramebuffer:
		return "framebuffer"
	}
	return "unknown"
}

// Kind is the closed set of logical resource types.
type Kind interface {
	kind() ResourceKind
}

type Image struct{}

// Buffer is a buffer of elements of type D.
type Buffer[D any] struct{}

type Framebuffer struct{}

func (Image) kind() ResourceKind       { return KindImage }
func (Buffer[D]) kind() ResourceKind   { return KindBuffer }
func (Framebuffer) kind() ResourceKind { return KindFramebuffer }

// Resource is a versioned handle to a logical resource. It is a plain value:
// copying it is free and it never owns the backing storage. Every write
// yields a handle with the next version; reads keep the version.
type Resource[T Kind] struct {
	graph   uuid.UUID
	id      ResourceIndex
	version uint32
	usage   Usage
}

func (r Resource[T]) ID() ResourceIndex {
	return r.id
}

func (r Resource[T]) Version() uint32 {
	return r.version
}

func (r Resource[T]) Usage() Usage {
	return r.usage
}

func (r Resource[T]) Kind() ResourceKind {
	var t T
	return t.kind()
}

// Valid reports whether the handle was issued by a graph.
func (r Resource[T]) Valid() bool {
	return r.graph != uuid.Nil
}

func (r Resource[T]) String() string {
	return fmt.Sprintf("%s#%d@v%d(%s)", r.Kind(), r.id, r.version, r.usage)
}

type resourceEntry struct {
	name     string
	kind     ResourceKind
	imported bool
	// version is the latest version of the resource
	version uint32
	// producers[v] is the pass that produced version v, -1 for imports
	producers []int
	// readers[v] lists the passes that read version v
	readers [][]int
}

func newResourceEntry(name string, kind ResourceKind, producer int) *resourceEntry {
	return &resourceEntry{
		name:      name,
		kind:      kind,
		producers: []int{producer},
		readers:   [][]int{nil},
	}
}
