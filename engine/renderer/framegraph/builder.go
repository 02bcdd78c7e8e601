package framegraph

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type request struct {
	id          ResourceIndex
	kind        ResourceKind
	pass        string
	image       metadata.ImageDesc
	buffer      metadata.BufferDesc
	renderPass  metadata.RenderPassHandle
	attachments []ResourceIndex
}

// TaskBuilder declares the resources a pass creates, reads and writes. Its
// changes are staged and only reach the graph once the setup callback
// returned without a recorded error.
type TaskBuilder struct {
	fg       *Framegraph
	pass     int
	name     string
	accesses []Access
	created  map[ResourceIndex]*resourceEntry
	order    []ResourceIndex
	requests []request
	// versions bumped by writes earlier in this pass
	pending map[ResourceIndex]uint32
	err     error
}

func newTaskBuilder(fg *Framegraph, pass int, name string) *TaskBuilder {
	return &TaskBuilder{
		fg:      fg,
		pass:    pass,
		name:    name,
		created: make(map[ResourceIndex]*resourceEntry),
		pending: make(map[ResourceIndex]uint32),
	}
}

// Name is the name of the pass being declared.
func (tb *TaskBuilder) Name() string {
	return tb.name
}

// Err returns the first error recorded by the builder.
func (tb *TaskBuilder) Err() error {
	return tb.err
}

func (tb *TaskBuilder) fail(id ResourceIndex, err error) {
	if tb.err == nil {
		tb.err = &core.ConfigurationError{Pass: tb.name, Resource: uint32(id), Err: err}
	}
}

func (tb *TaskBuilder) create(name string, kind ResourceKind) ResourceIndex {
	id := tb.fg.nextID
	tb.fg.nextID++
	if name == "" {
		name = fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
	}
	tb.created[id] = newResourceEntry(name, kind, tb.pass)
	tb.order = append(tb.order, id)
	tb.accesses = append(tb.accesses, Access{Resource: id, Kind: AccessCreate})
	return id
}

func (tb *TaskBuilder) entry(id ResourceIndex) (*resourceEntry, bool) {
	if e, ok := tb.created[id]; ok {
		return e, true
	}
	e, ok := tb.fg.resources[id]
	return e, ok
}

// current is the latest version of id as seen from this pass.
func (tb *TaskBuilder) current(id ResourceIndex, e *resourceEntry) uint32 {
	if v, ok := tb.pending[id]; ok {
		return v
	}
	return e.version
}

func (tb *TaskBuilder) check(graph uuid.UUID, id ResourceIndex, kind ResourceKind) (*resourceEntry, bool) {
	if graph != tb.fg.id {
		if graph == uuid.Nil {
			tb.fail(id, core.ErrDanglingResource)
		} else {
			tb.fail(id, core.ErrForeignResource)
		}
		return nil, false
	}
	e, ok := tb.entry(id)
	if !ok || e.kind != kind {
		tb.fail(id, core.ErrDanglingResource)
		return nil, false
	}
	return e, true
}

func (tb *TaskBuilder) read(graph uuid.UUID, id ResourceIndex, version uint32, kind ResourceKind) bool {
	e, ok := tb.check(graph, id, kind)
	if !ok {
		return false
	}
	cur := tb.current(id, e)
	switch {
	case version > cur:
		tb.fail(id, core.ErrDanglingResource)
		return false
	case version < cur:
		// the data of an overwritten version is gone
		tb.fail(id, core.ErrStaleResource)
		return false
	}
	tb.accesses = append(tb.accesses, Access{Resource: id, Kind: AccessRead, Version: version})
	return true
}

func (tb *TaskBuilder) write(graph uuid.UUID, id ResourceIndex, version uint32, kind ResourceKind) bool {
	e, ok := tb.check(graph, id, kind)
	if !ok {
		return false
	}
	cur := tb.current(id, e)
	if version > cur {
		tb.fail(id, core.ErrDanglingResource)
		return false
	}
	if version < cur {
		tb.fail(id, core.ErrStaleResource)
		return false
	}
	tb.pending[id] = version + 1
	tb.accesses = append(tb.accesses, Access{Resource: id, Kind: AccessWrite, Version: version})
	return true
}

// CreateImage declares a transient image that the graph allocates at compile
// time. The returned handle is at version 0 and writable.
func (tb *TaskBuilder) CreateImage(name string, desc metadata.ImageDesc) Resource[Image] {
	id := tb.create(name, KindImage)
	tb.requests = append(tb.requests, request{id: id, kind: KindImage, pass: tb.name, image: desc})
	return Resource[Image]{graph: tb.fg.id, id: id, usage: UsageWrite}
}

// CreateBuffer declares a buffer holding count elements of D. Uniform
// buffers are host visible so passes can fill them every frame.
func CreateBuffer[D any](tb *TaskBuilder, name string, count uint64, usage metadata.BufferUsage) Resource[Buffer[D]] {
	var elem D
	id := tb.create(name, KindBuffer)
	desc := metadata.BufferDesc{
		Size:        count * uint64(unsafe.Sizeof(elem)),
		Usage:       usage,
		HostVisible: usage&metadata.BufferUsageUniform != 0,
	}
	tb.requests = append(tb.requests, request{id: id, kind: KindBuffer, pass: tb.name, buffer: desc})
	return Resource[Buffer[D]]{graph: tb.fg.id, id: id, usage: UsageWrite}
}

// CreateFramebuffer declares a framebuffer over the given attachments. The
// attachments are read by this pass, so it runs after whoever produced them.
func (tb *TaskBuilder) CreateFramebuffer(name string, renderPass metadata.RenderPassHandle, attachments ...Resource[Image]) Resource[Framebuffer] {
	ids := make([]ResourceIndex, 0, len(attachments))
	for _, a := range attachments {
		if !tb.read(a.graph, a.id, a.version, KindImage) {
			return Resource[Framebuffer]{}
		}
		ids = append(ids, a.id)
	}
	id := tb.create(name, KindFramebuffer)
	tb.requests = append(tb.requests, request{id: id, kind: KindFramebuffer, pass: tb.name, renderPass: renderPass, attachments: ids})
	return Resource[Framebuffer]{graph: tb.fg.id, id: id, usage: UsageWrite}
}

// Read declares that the pass reads r. The version is unchanged.
func Read[T Kind](tb *TaskBuilder, r Resource[T]) Resource[T] {
	if !tb.read(r.graph, r.id, r.version, r.Kind()) {
		return r
	}
	r.usage = UsageRead
	return r
}

// Write declares that the pass overwrites r and returns the handle to the
// version it produces. Writing anything but the latest version fails with
// ErrStaleResource.
func Write[T Kind](tb *TaskBuilder, r Resource[T]) Resource[T] {
	if !tb.write(r.graph, r.id, r.version, r.Kind()) {
		return r
	}
	r.version++
	r.usage = UsageWrite
	return r
}
