package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/submission"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandPool is the native pool of one job worker. A vk.CommandPool
// must only be used from one goroutine at a time, which the worker
// ownership guarantees.
type VulkanCommandPool struct {
	Handle      vk.CommandPool
	Worker      cmdpool.WorkerID
	QueueFamily uint32
}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}
	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, vBeginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer: %w", resultError(res))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer: %w", resultError(res))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}

/**
 * Allocates and begins recording to out_command_buffer.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for queue operation and frees the provided command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue, family uint32) error {
	defer v.Free(context, pool)

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	return context.locks.SafeQueueCall(family, func() error {
		if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			err := fmt.Errorf("failed submit info to queue: %w", resultError(res))
			core.LogError(err.Error())
			return err
		}
		// Wait for it to finish
		if res := vk.QueueWaitIdle(queue); res != vk.Success {
			err := fmt.Errorf("queue failed to wait in idle mode: %w", resultError(res))
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

func (vr *VulkanRenderer) CreateCommandPool(worker cmdpool.WorkerID) (*VulkanCommandPool, error) {
	pool := &VulkanCommandPool{
		Worker:      worker,
		QueueFamily: uint32(vr.context.Device.GraphicsQueueIndex),
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: pool.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	err := vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.CreateCommandPool(vr.context.Device.LogicalDevice, &poolCreateInfo, vr.context.Allocator, &pool.Handle); res != vk.Success {
			return fmt.Errorf("vkCreateCommandPool for worker %d: %w", worker, resultError(res))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (vr *VulkanRenderer) AllocateCommandBuffer(pool *VulkanCommandPool) (*VulkanCommandBuffer, error) {
	return NewVulkanCommandBuffer(vr.context, pool.Handle, true)
}

func (vr *VulkanRenderer) ResetCommandBuffer(pool *VulkanCommandPool, buffer *VulkanCommandBuffer) error {
	if res := vk.ResetCommandBuffer(buffer.Handle, 0); res != vk.Success {
		return fmt.Errorf("vkResetCommandBuffer on worker %d: %w", pool.Worker, resultError(res))
	}
	buffer.Reset()
	return nil
}

func (vr *VulkanRenderer) DestroyCommandPool(pool *VulkanCommandPool) {
	if pool.Handle == vk.NullCommandPool {
		return
	}
	_ = vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(vr.context.Device.LogicalDevice, pool.Handle, vr.context.Allocator)
		return nil
	})
	pool.Handle = vk.NullCommandPool
}

func (vr *VulkanRenderer) QueueSubmit(kind metadata.QueueKind, buffer *VulkanCommandBuffer, fence metadata.FenceHandle) error {
	f, err := vr.context.fence(fence)
	if err != nil {
		return err
	}
	queue, family := vr.context.Device.Queue(kind)
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{buffer.Handle},
	}
	err = vr.context.locks.SafeQueueCall(family, func() error {
		if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, f.Handle); res != vk.Success {
			return fmt.Errorf("vkQueueSubmit on %s queue: %w", kind, resultError(res))
		}
		return nil
	})
	if err != nil {
		return err
	}
	buffer.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) Encoder(buffer *VulkanCommandBuffer) submission.Encoder {
	return &VulkanEncoder{context: vr.context, buffer: buffer}
}

// VulkanEncoder records into one command buffer. The first failed lookup is
// kept and returned from End, so a bad handle fails the whole submit.
type VulkanEncoder struct {
	context *VulkanContext
	buffer  *VulkanCommandBuffer

	renderPass  *VulkanRenderpass
	framebuffer *VulkanFramebuffer
	err         error
}

func (e *VulkanEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *VulkanEncoder) Begin(oneShot bool) error {
	e.err = nil
	return e.buffer.Begin(oneShot, false, false)
}

func (e *VulkanEncoder) End() error {
	if e.renderPass != nil {
		e.fail(fmt.Errorf("command buffer ended inside a render pass"))
	}
	if err := e.buffer.End(); err != nil {
		return err
	}
	return e.err
}

func (e *VulkanEncoder) ImageBarrier(barriers ...submission.ImageBarrier) {
	var srcStages, dstStages vk.PipelineStageFlags
	native := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, err := e.context.image(b.Image)
		if err != nil {
			e.fail(err)
			continue
		}
		srcAccess, srcStage := vulkanAccess(b.SrcAccess, true)
		dstAccess, dstStage := vulkanAccess(b.DstAccess, false)
		srcStages |= srcStage
		dstStages |= dstStage
		native = append(native, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           vulkanLayout(b.OldLayout),
			NewLayout:           vulkanLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     img.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
	}
	if len(native) == 0 {
		return
	}
	vk.CmdPipelineBarrier(e.buffer.Handle, srcStages, dstStages, 0, 0, nil, 0, nil, uint32(len(native)), native)
}

func (e *VulkanEncoder) BufferBarrier(barriers ...submission.BufferBarrier) {
	var srcStages, dstStages vk.PipelineStageFlags
	native := make([]vk.BufferMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		buf, err := e.context.buffer(b.Buffer)
		if err != nil {
			e.fail(err)
			continue
		}
		srcAccess, srcStage := vulkanAccess(b.SrcAccess, true)
		dstAccess, dstStage := vulkanAccess(b.DstAccess, false)
		srcStages |= srcStage
		dstStages |= dstStage
		native = append(native, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf.Handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	if len(native) == 0 {
		return
	}
	vk.CmdPipelineBarrier(e.buffer.Handle, srcStages, dstStages, 0, 0, nil, uint32(len(native)), native, 0, nil)
}

// CopyImage copies the overlapping extent of src and dst.
func (e *VulkanEncoder) CopyImage(src, dst metadata.ImageHandle, srcLayout, dstLayout metadata.ImageLayout) {
	s, err := e.context.image(src)
	if err != nil {
		e.fail(err)
		return
	}
	d, err := e.context.image(dst)
	if err != nil {
		e.fail(err)
		return
	}
	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: s.Aspect, LayerCount: 1},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: d.Aspect, LayerCount: 1},
		Extent: vk.Extent3D{
			Width:  min(s.Width, d.Width),
			Height: min(s.Height, d.Height),
			Depth:  1,
		},
	}
	vk.CmdCopyImage(e.buffer.Handle, s.Handle, vulkanLayout(srcLayout), d.Handle, vulkanLayout(dstLayout), 1, []vk.ImageCopy{region})
}

func (e *VulkanEncoder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) {
	s, err := e.context.buffer(src)
	if err != nil {
		e.fail(err)
		return
	}
	d, err := e.context.buffer(dst)
	if err != nil {
		e.fail(err)
		return
	}
	if size == 0 {
		size = min(s.Size, d.Size)
	}
	vk.CmdCopyBuffer(e.buffer.Handle, s.Handle, d.Handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
}

func (e *VulkanEncoder) BeginRenderPass(renderPass metadata.RenderPassHandle, framebuffer metadata.FramebufferHandle) {
	rp, err := e.context.renderPass(renderPass)
	if err != nil {
		e.fail(err)
		return
	}
	fb, err := e.context.framebuffer(framebuffer)
	if err != nil {
		e.fail(err)
		return
	}
	rp.RenderpassBegin(e.buffer, fb)
	e.renderPass, e.framebuffer = rp, fb
}

// EndRenderPass records the layouts the pass leaves its attachments in.
func (e *VulkanEncoder) EndRenderPass() {
	if e.renderPass == nil {
		return
	}
	e.renderPass.RenderpassEnd(e.buffer)
	color := e.renderPass.colorFinalLayout()
	for i, h := range e.framebuffer.Attachments {
		img, ok := e.context.images.Get(uint32(h))
		if !ok {
			continue
		}
		if i < len(e.renderPass.Desc.ColorFormats) {
			img.SetLayout(color)
		} else {
			img.SetLayout(metadata.ImageLayoutDepthAttachment)
		}
	}
	e.renderPass, e.framebuffer = nil, nil
}

func (e *VulkanEncoder) BindPipeline(kind metadata.PipelineKind, pipeline metadata.PipelineHandle) {
	p, err := e.context.pipeline(pipeline)
	if err != nil {
		e.fail(err)
		return
	}
	p.Bind(e.buffer, vulkanBindPoint(kind))
}

func (e *VulkanEncoder) BindDescriptorSet(kind metadata.PipelineKind, pipeline metadata.PipelineHandle, set metadata.DescriptorSetHandle) {
	p, err := e.context.pipeline(pipeline)
	if err != nil {
		e.fail(err)
		return
	}
	s, err := e.context.descriptorSet(set)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(e.buffer.Handle, vulkanBindPoint(kind), p.PipelineLayout, 0, 1, []vk.DescriptorSet{s.Handle}, 0, nil)
}

func (e *VulkanEncoder) BindVertexBuffer(buffer metadata.BufferHandle) {
	buf, err := e.context.buffer(buffer)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindVertexBuffers(e.buffer.Handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{0})
}

func (e *VulkanEncoder) BindIndexBuffer(buffer metadata.BufferHandle) {
	buf, err := e.context.buffer(buffer)
	if err != nil {
		e.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(e.buffer.Handle, buf.Handle, 0, vk.IndexTypeUint32)
}

func (e *VulkanEncoder) DrawIndexed(first, count uint32) {
	vk.CmdDrawIndexed(e.buffer.Handle, count, 1, first, 0, 0)
}

func (e *VulkanEncoder) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(e.buffer.Handle, x, y, z)
}
