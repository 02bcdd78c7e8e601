package null

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/submission"
)

type CommandPool struct {
	worker  cmdpool.WorkerID
	buffers int
}

// CommandBuffer holds recorded operations until they are submitted.
type CommandBuffer struct {
	id      int
	pool    *CommandPool
	ops     []op
	oneShot bool
}

type op struct {
	desc string
	// run is applied on submit, with the backend lock held
	run func()
}

type fence struct {
	signalled bool
}

func (b *Backend) CreateCommandPool(worker cmdpool.WorkerID) (*CommandPool, error) {
	b.mu.Lock()
	b.stats.CommandPools++
	b.mu.Unlock()
	return &CommandPool{worker: worker}, nil
}

func (b *Backend) AllocateCommandBuffer(pool *CommandPool) (*CommandBuffer, error) {
	b.mu.Lock()
	b.stats.CommandBuffers++
	b.mu.Unlock()
	pool.buffers++
	return &CommandBuffer{id: pool.buffers, pool: pool}, nil
}

func (b *Backend) ResetCommandBuffer(pool *CommandPool, buf *CommandBuffer) error {
	buf.ops = nil
	return nil
}

func (b *Backend) DestroyCommandPool(pool *CommandPool) {
	core.LogDebug("null: destroyed command pool of worker %d (%d buffers)", pool.worker, pool.buffers)
}

func (b *Backend) Encoder(buf *CommandBuffer) submission.Encoder {
	return &encoder{b: b, buf: buf}
}

func (b *Backend) CreateFence() (metadata.FenceHandle, error) {
	return metadata.FenceHandle(b.fences.Acquire(&fence{})), nil
}

// QueueSubmit executes the buffer immediately and signals the fence.
func (b *Backend) QueueSubmit(queue metadata.QueueKind, buf *CommandBuffer, handle metadata.FenceHandle) error {
	if err := b.failure(OpQueueSubmit); err != nil {
		return err
	}
	f, ok := b.fences.Get(uint32(handle))
	if !ok {
		return fmt.Errorf("fence %d: %w", handle, core.ErrInvalidHandle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range buf.ops {
		if o.run != nil {
			o.run()
		}
		b.executed = append(b.executed, fmt.Sprintf("%s: %s", queue, o.desc))
	}
	b.stats.Submits++
	f.signalled = true
	return nil
}

func (b *Backend) WaitForFence(handle metadata.FenceHandle) error {
	if err := b.failure(OpWaitForFence); err != nil {
		return err
	}
	f, ok := b.fences.Get(uint32(handle))
	if !ok {
		return fmt.Errorf("fence %d: %w", handle, core.ErrInvalidHandle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !f.signalled {
		return fmt.Errorf("fence %d was never submitted: %w", handle, core.ErrDeviceLost)
	}
	return nil
}

func (b *Backend) DestroyFence(handle metadata.FenceHandle) {
	if _, err := b.fences.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy fence: %s", err)
	}
}

func (b *Backend) ImageLayout(handle metadata.ImageHandle) metadata.ImageLayout {
	img, ok := b.images.Get(uint32(handle))
	if !ok {
		return metadata.ImageLayoutUndefined
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return img.layout
}

func (b *Backend) SetImageLayout(handle metadata.ImageHandle, layout metadata.ImageLayout) {
	img, ok := b.images.Get(uint32(handle))
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	img.layout = layout
}

type encoder struct {
	b   *Backend
	buf *CommandBuffer
}

func (e *encoder) record(run func(), format string, args ...interface{}) {
	e.buf.ops = append(e.buf.ops, op{desc: fmt.Sprintf(format, args...), run: run})
}

func (e *encoder) Begin(oneShot bool) error {
	e.buf.ops = e.buf.ops[:0]
	e.buf.oneShot = oneShot
	return nil
}

func (e *encoder) End() error {
	return nil
}

func (e *encoder) ImageBarrier(barriers ...submission.ImageBarrier) {
	for _, b := range barriers {
		e.record(nil, "barrier %s", b)
	}
}

func (e *encoder) BufferBarrier(barriers ...submission.BufferBarrier) {
	for _, b := range barriers {
		e.record(nil, "barrier buffer %d", b.Buffer)
	}
}

func (e *encoder) CopyImage(src, dst metadata.ImageHandle, srcLayout, dstLayout metadata.ImageLayout) {
	s, serr := e.b.image(src)
	d, derr := e.b.image(dst)
	e.record(func() {
		if serr == nil && derr == nil {
			copy(d.data, s.data)
		}
	}, "copy image %d -> %d", src, dst)
}

func (e *encoder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) {
	s, serr := e.b.buffer(src)
	d, derr := e.b.buffer(dst)
	e.record(func() {
		if serr == nil && derr == nil {
			n := min(size, uint64(len(s.data)), uint64(len(d.data)))
			copy(d.data[:n], s.data[:n])
		}
	}, "copy buffer %d -> %d (%d bytes)", src, dst, size)
}

func (e *encoder) BeginRenderPass(pass metadata.RenderPassHandle, fb metadata.FramebufferHandle) {
	e.record(nil, "begin render pass %d framebuffer %d", pass, fb)
}

func (e *encoder) EndRenderPass() {
	e.record(nil, "end render pass")
}

func (e *encoder) BindPipeline(kind metadata.PipelineKind, p metadata.PipelineHandle) {
	e.record(nil, "bind pipeline %d", p)
}

func (e *encoder) BindDescriptorSet(kind metadata.PipelineKind, p metadata.PipelineHandle, set metadata.DescriptorSetHandle) {
	e.record(nil, "bind set %d", set)
}

func (e *encoder) BindVertexBuffer(buf metadata.BufferHandle) {
	e.record(nil, "bind vertex buffer %d", buf)
}

func (e *encoder) BindIndexBuffer(buf metadata.BufferHandle) {
	e.record(nil, "bind index buffer %d", buf)
}

func (e *encoder) DrawIndexed(first, count uint32) {
	e.record(nil, "draw indexed %d+%d", first, count)
}

func (e *encoder) Dispatch(x, y, z uint32) {
	e.record(nil, "dispatch %dx%dx%d", x, y, z)
}
