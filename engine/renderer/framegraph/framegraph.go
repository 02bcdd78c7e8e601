package framegraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Backend is what the graph needs from a renderer backend: resource
// allocation at compile time and command submission at execution time.
type Backend interface {
	descriptor.Device

	AllocateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error)
	DestroyImage(image metadata.ImageHandle)
	AllocateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error)
	DestroyBuffer(buffer metadata.BufferHandle)
	CreateFramebuffer(renderPass metadata.RenderPassHandle, attachments []metadata.ImageHandle) (metadata.FramebufferHandle, error)
	DestroyFramebuffer(framebuffer metadata.FramebufferHandle)

	SubmitCommands(ctx context.Context, worker cmdpool.WorkerID, pool *descriptor.Pool, list *command.List) error
}

// Context binds a graph to the backend and worker it runs on.
type Context struct {
	Backend Backend
	Worker  cmdpool.WorkerID
	// Metrics is optional; when set every executed frame is recorded.
	Metrics *core.FrameMetrics
}

type State int

const (
	StateRecording State = iota
	StateCompiled
)

func (s State) String() string {
	if s == StateCompiled {
		return "compiled"
	}
	return "recording"
}

type options struct {
	name      string
	blockSize uint32
}

type Option func(*options)

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithBlockSize sets how many descriptor sets each native descriptor pool holds.
func WithBlockSize(n uint32) Option {
	return func(o *options) { o.blockSize = n }
}

// Framegraph records passes and their resource accesses for one frame. Build
// it with AddPass and ImportImage, then Compile it once.
type Framegraph struct {
	id    uuid.UUID
	name  string
	ctx   Context
	state State

	passes      []*passNode
	executables []ExecutablePass
	edges       []edge

	nextID    ResourceIndex
	resources map[ResourceIndex]*resourceEntry
	declared  []ResourceIndex
	requests  []request

	registry *Registry
	pool     *descriptor.Pool
}

func New(ctx Context, opts ...Option) *Framegraph {
	o := options{blockSize: descriptor.DefaultBlockSize}
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.New()
	if o.name == "" {
		o.name = "framegraph-" + id.String()[:8]
	}
	return &Framegraph{
		id:        id,
		name:      o.name,
		ctx:       ctx,
		resources: make(map[ResourceIndex]*resourceEntry),
		registry:  newRegistry(),
		pool:      descriptor.NewPool(ctx.Backend, o.blockSize),
	}
}

func (fg *Framegraph) ID() uuid.UUID {
	return fg.id
}

func (fg *Framegraph) Name() string {
	return fg.name
}

func (fg *Framegraph) State() State {
	return fg.state
}

// AddPass registers a pass. setup declares the pass's resources through the
// TaskBuilder and returns the pass output plus the work to run at execution.
// A failed setup leaves the graph untouched.
func AddPass[O any](fg *Framegraph, name string, setup func(tb *TaskBuilder) (O, ExecutablePass)) (O, error) {
	var zero O
	if fg.state != StateRecording {
		err := fmt.Errorf("add pass %q: %w", name, core.ErrGraphCompiled)
		core.LogError(err.Error())
		return zero, err
	}
	tb := newTaskBuilder(fg, len(fg.passes), name)
	out, exec := setup(tb)
	if tb.err != nil {
		core.LogError("add pass %q: %s", name, tb.err)
		return zero, tb.err
	}
	if exec == nil {
		exec = noop
	}
	fg.commit(tb, exec)
	return out, nil
}

func (fg *Framegraph) commit(tb *TaskBuilder, exec ExecutablePass) {
	node := &passNode{name: tb.name, index: tb.pass, accesses: tb.accesses}
	fg.passes = append(fg.passes, node)
	fg.executables = append(fg.executables, exec)

	for _, id := range tb.order {
		fg.resources[id] = tb.created[id]
		fg.declared = append(fg.declared, id)
	}
	fg.requests = append(fg.requests, tb.requests...)

	for _, a := range tb.accesses {
		e := fg.resources[a.Resource]
		switch a.Kind {
		case AccessRead:
			fg.connect(e.producers[a.Version], node.index, a)
			e.readers[a.Version] = append(e.readers[a.Version], node.index)
		case AccessWrite:
			fg.connect(e.producers[a.Version], node.index, a)
			for _, r := range e.readers[a.Version] {
				fg.connect(r, node.index, a)
			}
			e.version = a.Version + 1
			e.producers = append(e.producers, node.index)
			e.readers = append(e.readers, nil)
		}
	}
}

func (fg *Framegraph) connect(from, to int, a Access) {
	if from < 0 || from == to {
		return
	}
	idx := len(fg.edges)
	fg.edges = append(fg.edges, edge{from: from, to: to, access: a})
	fg.passes[from].outgoing = append(fg.passes[from].outgoing, idx)
	fg.passes[to].incoming = append(fg.passes[to].incoming, idx)
}

// ImportImage registers an externally owned image, such as a swapchain
// image. It has no producer, is never allocated or destroyed by the graph
// and is returned writable at version 0.
func (fg *Framegraph) ImportImage(name string, handle metadata.ImageHandle, desc metadata.ImageDesc) (Resource[Image], error) {
	if fg.state != StateRecording {
		err := fmt.Errorf("import image %q: %w", name, core.ErrGraphCompiled)
		core.LogError(err.Error())
		return Resource[Image]{}, err
	}
	id := fg.nextID
	fg.nextID++
	e := newResourceEntry(name, KindImage, -1)
	e.imported = true
	fg.resources[id] = e
	fg.declared = append(fg.declared, id)
	fg.registry.images[id] = handle
	core.LogDebug("framegraph %s imported image %q (%s %dx%d) as #%d", fg.name, name, desc.Format, desc.Resolution.Width, desc.Resolution.Height, id)
	return Resource[Image]{graph: fg.id, id: id, usage: UsageWrite}, nil
}

// Compile allocates every declared resource through the backend, in
// declaration order, and checks that each access resolves to a registry
// entry. The graph accepts no more passes afterwards. On failure everything
// allocated so far is destroyed and the graph stays in recording.
func (fg *Framegraph) Compile() (*CompiledGraph, error) {
	if fg.state != StateRecording {
		err := fmt.Errorf("compile %s: %w", fg.name, core.ErrGraphCompiled)
		core.LogError(err.Error())
		return nil, err
	}
	if err := fg.allocate(); err != nil {
		fg.release()
		core.LogError("compile %s: %s", fg.name, err)
		return nil, err
	}
	fg.state = StateCompiled
	core.LogDebug("framegraph %s compiled: %d passes, %d edges, %s", fg.name, len(fg.passes), len(fg.edges), fg.registry)
	return &CompiledGraph{fg: fg, clock: core.NewClock()}, nil
}

func (fg *Framegraph) allocate() error {
	backend := fg.ctx.Backend
	for _, req := range fg.requests {
		name := fg.resources[req.id].name
		switch req.kind {
		case KindImage:
			h, err := backend.AllocateImage(req.image)
			if err != nil {
				return fmt.Errorf("pass %q: allocate image %q: %w", req.pass, name, err)
			}
			fg.registry.images[req.id] = h
		case KindBuffer:
			h, err := backend.AllocateBuffer(req.buffer)
			if err != nil {
				return fmt.Errorf("pass %q: allocate buffer %q: %w", req.pass, name, err)
			}
			fg.registry.buffers[req.id] = h
		case KindFramebuffer:
			images := make([]metadata.ImageHandle, 0, len(req.attachments))
			for _, a := range req.attachments {
				h, ok := fg.registry.images[a]
				if !ok {
					return &core.ConfigurationError{Pass: req.pass, Resource: uint32(a), Err: core.ErrDanglingResource}
				}
				images = append(images, h)
			}
			h, err := backend.CreateFramebuffer(req.renderPass, images)
			if err != nil {
				return fmt.Errorf("pass %q: create framebuffer %q: %w", req.pass, name, err)
			}
			fg.registry.framebuffers[req.id] = h
		}
	}
	for _, p := range fg.passes {
		for _, a := range p.accesses {
			if !fg.registry.Has(a.Resource) {
				return &core.ConfigurationError{Pass: p.name, Resource: uint32(a.Resource), Err: core.ErrDanglingResource}
			}
		}
	}
	return nil
}

// release destroys every backend object the graph allocated and drops it from
// the registry. Imported images stay registered and are left to their owner.
func (fg *Framegraph) release() {
	backend := fg.ctx.Backend
	reg := fg.registry
	for _, id := range fg.declared {
		if h, ok := reg.framebuffers[id]; ok && !fg.resources[id].imported {
			backend.DestroyFramebuffer(h)
			delete(reg.framebuffers, id)
		}
	}
	for _, id := range fg.declared {
		e := fg.resources[id]
		if e.imported {
			continue
		}
		switch e.kind {
		case KindImage:
			if h, ok := reg.images[id]; ok {
				backend.DestroyImage(h)
				delete(reg.images, id)
			}
		case KindBuffer:
			if h, ok := reg.buffers[id]; ok {
				backend.DestroyBuffer(h)
				delete(reg.buffers, id)
			}
		}
	}
}

// Passes returns the pass names in registration order.
func (fg *Framegraph) Passes() []string {
	names := make([]string, len(fg.passes))
	for i, p := range fg.passes {
		names[i] = p.name
	}
	return names
}

// SubmissionOrder returns the pass names in the order they would execute.
func (fg *Framegraph) SubmissionOrder() ([]string, error) {
	order, err := fg.submissionOrder()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = fg.passes[idx].name
	}
	return names, nil
}

// submissionOrder walks the graph backwards from its single sink. Every pass
// lands after all of its producers; unreachable passes are culled.
func (fg *Framegraph) submissionOrder() ([]int, error) {
	sink := -1
	for _, p := range fg.passes {
		if len(p.outgoing) > 0 {
			continue
		}
		if sink >= 0 {
			return nil, fmt.Errorf("%s: passes %q and %q: %w", fg.name, fg.passes[sink].name, p.name, core.ErrMultipleBackbuffers)
		}
		sink = p.index
	}
	if sink < 0 {
		return nil, fmt.Errorf("%s: %w", fg.name, core.ErrNoBackbuffer)
	}

	visited := make([]bool, len(fg.passes))
	order := make([]int, 0, len(fg.passes))
	var visit func(int)
	visit = func(n int) {
		visited[n] = true
		for _, ei := range fg.passes[n].incoming {
			if from := fg.edges[ei].from; !visited[from] {
				visit(from)
			}
		}
		order = append(order, n)
	}
	visit(sink)
	return order, nil
}

func (fg *Framegraph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "framegraph %s (%s)\n", fg.name, fg.state)
	for _, p := range fg.passes {
		fmt.Fprintf(&sb, "  pass %d %q\n", p.index, p.name)
		for _, ei := range p.incoming {
			e := fg.edges[ei]
			fmt.Fprintf(&sb, "    <- %q (%s)\n", fg.passes[e.from].name, e.access)
		}
	}
	for _, id := range fg.declared {
		e := fg.resources[id]
		fmt.Fprintf(&sb, "  %s #%d %q v%d", e.kind, id, e.name, e.version)
		if e.imported {
			sb.WriteString(" imported")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
