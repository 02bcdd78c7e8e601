package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []metadata.ImageHandle
	Renderpass  *VulkanRenderpass
	Width       uint32
	Height      uint32
}

// FramebufferCreate binds attachments to renderpass. Every attachment must
// have the same extent.
func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, handles []metadata.ImageHandle) (*VulkanFramebuffer, error) {
	if len(handles) != renderpass.Desc.AttachmentCount() {
		return nil, fmt.Errorf("framebuffer has %d attachments, render pass expects %d: %w",
			len(handles), renderpass.Desc.AttachmentCount(), core.ErrInvalidHandle)
	}
	outFramebuffer := &VulkanFramebuffer{
		Attachments: append([]metadata.ImageHandle(nil), handles...),
		Renderpass:  renderpass,
	}
	views := make([]vk.ImageView, len(handles))
	for i, h := range handles {
		img, err := context.image(h)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			outFramebuffer.Width, outFramebuffer.Height = img.Width, img.Height
		} else if img.Width != outFramebuffer.Width || img.Height != outFramebuffer.Height {
			return nil, fmt.Errorf("framebuffer attachment %d is %dx%d, expected %dx%d: %w",
				i, img.Width, img.Height, outFramebuffer.Width, outFramebuffer.Height, core.ErrInvalidHandle)
		}
		views[i] = img.View
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           outFramebuffer.Width,
		Height:          outFramebuffer.Height,
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &outFramebuffer.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

func (vr *VulkanRenderer) CreateFramebuffer(pass metadata.RenderPassHandle, attachments []metadata.ImageHandle) (metadata.FramebufferHandle, error) {
	rp, err := vr.context.renderPass(pass)
	if err != nil {
		return 0, err
	}
	fb, err := FramebufferCreate(vr.context, rp, attachments)
	if err != nil {
		return 0, err
	}
	return metadata.FramebufferHandle(vr.context.framebuffers.Acquire(fb)), nil
}

func (vr *VulkanRenderer) DestroyFramebuffer(handle metadata.FramebufferHandle) {
	fb, err := vr.context.framebuffers.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy framebuffer: %s", err)
		return
	}
	fb.Destroy(vr.context)
}
