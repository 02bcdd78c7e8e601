// Package null is a CPU backend. It keeps every object in memory, executes
// copies on submit and records each native call, so graphs can run and be
// inspected without a GPU.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/submission"
)

// Op names a backend call that can be made to fail with FailNext.
type Op string

const (
	OpAllocateImage        Op = "allocate_image"
	OpAllocateBuffer       Op = "allocate_buffer"
	OpCreateFramebuffer    Op = "create_framebuffer"
	OpCreatePipeline       Op = "create_pipeline"
	OpCreateDescriptorPool Op = "create_descriptor_pool"
	OpQueueSubmit          Op = "queue_submit"
	OpWaitForFence         Op = "wait_for_fence"
	OpAcquireNextImage     Op = "acquire_next_image"
)

// Stats counts objects and calls since the backend was created.
type Stats struct {
	Images       int
	Buffers      int
	Framebuffers int
	RenderPasses int
	Pipelines    int
	Fences       int

	DescriptorPoolsCreated  int
	DescriptorSetsAllocated int
	DescriptorPoolResets    int
	CommandPools            int
	CommandBuffers          int
	Submits                 int
	Presents                int
}

type options struct {
	swapchainImages int
	maxBuffers      int
}

type Option func(*options)

// WithSwapchainImages sets how many images the simulated swapchain rotates.
func WithSwapchainImages(n int) Option {
	return func(o *options) { o.swapchainImages = n }
}

// WithMaxCommandBuffers bounds the command buffers each worker may hold.
func WithMaxCommandBuffers(n int) Option {
	return func(o *options) { o.maxBuffers = n }
}

type Backend struct {
	opts options

	mu       sync.Mutex
	stats    Stats
	executed []string
	failures map[Op]error

	images          *core.HandleTable[*image]
	buffers         *core.HandleTable[*buffer]
	framebuffers    *core.HandleTable[*framebuffer]
	renderPasses    *core.HandleTable[*renderPass]
	pipelines       *core.HandleTable[*pipeline]
	descriptorPools *core.HandleTable[*descriptorPool]
	fences          *core.HandleTable[*fence]

	sets    map[metadata.DescriptorSetHandle]*descriptorSet
	nextSet metadata.DescriptorSetHandle

	swapchain *swapchain

	pools  *cmdpool.Pool[*CommandPool, *CommandBuffer]
	engine *submission.Engine[*CommandPool, *CommandBuffer]
}

func New(opts ...Option) *Backend {
	o := options{swapchainImages: 3, maxBuffers: cmdpool.DefaultMaxBuffers}
	for _, opt := range opts {
		opt(&o)
	}
	b := &Backend{
		opts:            o,
		failures:        make(map[Op]error),
		images:          core.NewHandleTable[*image](),
		buffers:         core.NewHandleTable[*buffer](),
		framebuffers:    core.NewHandleTable[*framebuffer](),
		renderPasses:    core.NewHandleTable[*renderPass](),
		pipelines:       core.NewHandleTable[*pipeline](),
		descriptorPools: core.NewHandleTable[*descriptorPool](),
		fences:          core.NewHandleTable[*fence](),
		sets:            make(map[metadata.DescriptorSetHandle]*descriptorSet),
	}
	b.pools = cmdpool.New[*CommandPool, *CommandBuffer](b, o.maxBuffers)
	b.engine = submission.NewEngine[*CommandPool, *CommandBuffer](b, b.pools)
	return b
}

func (b *Backend) Name() string {
	return core.BackendNull
}

func (b *Backend) Initialize(appName string, width, height uint32) error {
	core.LogInfo("null backend initialized for %s (%dx%d)", appName, width, height)
	return b.createSwapchain(width, height)
}

func (b *Backend) Shutdown() error {
	b.destroySwapchain()
	b.pools.Destroy()
	core.LogInfo("null backend shut down")
	return nil
}

func (b *Backend) WaitIdle() error {
	return nil
}

// FailNext makes the next call of op return err.
func (b *Backend) FailNext(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

func (b *Backend) failure(op Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err, ok := b.failures[op]
	if !ok {
		return nil
	}
	delete(b.failures, op)
	return fmt.Errorf("%s: %w", op, err)
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Images = b.images.Len()
	s.Buffers = b.buffers.Len()
	s.Framebuffers = b.framebuffers.Len()
	s.RenderPasses = b.renderPasses.Len()
	s.Pipelines = b.pipelines.Len()
	s.Fences = b.fences.Len()
	return s
}

// Executed returns every command executed by the simulated queues, in
// submission order, prefixed with the queue name.
func (b *Backend) Executed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.executed))
	copy(out, b.executed)
	return out
}

// ResetExecuted clears the executed command log.
func (b *Backend) ResetExecuted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed = nil
}

func (b *Backend) SubmitCommands(ctx context.Context, worker cmdpool.WorkerID, pool *descriptor.Pool, list *command.List) error {
	return b.engine.Submit(ctx, worker, pool, list)
}

// CommandPools exposes the per-worker command buffer pools.
func (b *Backend) CommandPools() *cmdpool.Pool[*CommandPool, *CommandBuffer] {
	return b.pools
}
