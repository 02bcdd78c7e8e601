package submission

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// ImageBarrier moves an image between layouts and makes SrcAccess writes
// visible to DstAccess.
type ImageBarrier struct {
	Image     metadata.ImageHandle
	OldLayout metadata.ImageLayout
	NewLayout metadata.ImageLayout
	SrcAccess metadata.Access
	DstAccess metadata.Access
}

func (b ImageBarrier) String() string {
	return fmt.Sprintf("image %d %s -> %s", b.Image, b.OldLayout, b.NewLayout)
}

type BufferBarrier struct {
	Buffer    metadata.BufferHandle
	SrcAccess metadata.Access
	DstAccess metadata.Access
}

// Encoder records native commands into one command buffer.
type Encoder interface {
	Begin(oneShot bool) error
	End() error

	ImageBarrier(barriers ...ImageBarrier)
	BufferBarrier(barriers ...BufferBarrier)

	CopyImage(src, dst metadata.ImageHandle, srcLayout, dstLayout metadata.ImageLayout)
	CopyBuffer(src, dst metadata.BufferHandle, size uint64)

	BeginRenderPass(renderPass metadata.RenderPassHandle, framebuffer metadata.FramebufferHandle)
	EndRenderPass()
	BindPipeline(kind metadata.PipelineKind, pipeline metadata.PipelineHandle)
	BindDescriptorSet(kind metadata.PipelineKind, pipeline metadata.PipelineHandle, set metadata.DescriptorSetHandle)
	BindVertexBuffer(buffer metadata.BufferHandle)
	BindIndexBuffer(buffer metadata.BufferHandle)
	DrawIndexed(first, count uint32)
	Dispatch(x, y, z uint32)
}

// Device is the part of a backend the engine submits through. B is the
// native command buffer type.
type Device[B any] interface {
	Encoder(buffer B) Encoder

	CreateFence() (metadata.FenceHandle, error)
	QueueSubmit(queue metadata.QueueKind, buffer B, fence metadata.FenceHandle) error
	// WaitForFence blocks until the fence signals.
	WaitForFence(fence metadata.FenceHandle) error
	DestroyFence(fence metadata.FenceHandle)

	// ImageLayout is the layout the image was left in by the last
	// submitted command touching it.
	ImageLayout(image metadata.ImageHandle) metadata.ImageLayout
	SetImageLayout(image metadata.ImageHandle, layout metadata.ImageLayout)
}
