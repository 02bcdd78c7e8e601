package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

/**
 * @brief A single-subpass render pass built from a RenderPassDesc.
 */
type VulkanRenderpass struct {
	Handle vk.RenderPass
	Desc   metadata.RenderPassDesc
	/** @brief One clear value per attachment, colour first. */
	ClearValues []vk.ClearValue
}

// colorFinalLayout is where colour attachments end up after the pass.
func (vr *VulkanRenderpass) colorFinalLayout() metadata.ImageLayout {
	if vr.Desc.FinalLayout == metadata.ImageLayoutUndefined {
		return metadata.ImageLayoutColorAttachment
	}
	return vr.Desc.FinalLayout
}

func RenderpassCreate(context *VulkanContext, desc metadata.RenderPassDesc) (*VulkanRenderpass, error) {
	if desc.AttachmentCount() == 0 {
		return nil, fmt.Errorf("render pass without attachments: %w", core.ErrPipelineCompile)
	}
	outRenderpass := &VulkanRenderpass{Desc: desc}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, desc.AttachmentCount())
	colorReferences := make([]vk.AttachmentReference, 0, len(desc.ColorFormats))
	finalLayout := vulkanLayout(outRenderpass.colorFinalLayout())

	for i, f := range desc.ColorFormats {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(f),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
			FinalLayout:    finalLayout,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		var clear vk.ClearValue
		clear.SetColor(desc.ClearColor[:])
		outRenderpass.ClearValues = append(outRenderpass.ClearValues, clear)
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	if desc.DepthFormat != metadata.FormatUndefined {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(desc.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.ColorFormats)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		var clear vk.ClearValue
		clear.SetDepthStencil(desc.ClearDepth, 0)
		outRenderpass.ClearValues = append(outRenderpass.ClearValues, clear)
	}

	// Wait for earlier attachment writes before ours.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &outRenderpass.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create render pass: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

// RenderpassBegin starts the pass over the whole framebuffer and sets the
// dynamic viewport and scissor to match it.
func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer) {
	extent := vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(vr.ClearValues)),
		PClearValues:    vr.ClearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)

	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{{Extent: extent}})
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

func (vr *VulkanRenderer) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error) {
	rp, err := RenderpassCreate(vr.context, desc)
	if err != nil {
		return 0, err
	}
	return metadata.RenderPassHandle(vr.context.renderPasses.Acquire(rp)), nil
}

func (vr *VulkanRenderer) DestroyRenderPass(handle metadata.RenderPassHandle) {
	rp, err := vr.context.renderPasses.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy render pass: %s", err)
		return
	}
	rp.RenderpassDestroy(vr.context)
}
