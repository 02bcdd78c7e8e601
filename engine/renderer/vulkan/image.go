package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	Aspect vk.ImageAspectFlags
	Desc   metadata.ImageDesc

	// owned is false for swapchain images, whose memory belongs to the
	// swapchain.
	owned bool

	mu     sync.Mutex
	layout metadata.ImageLayout
}

func (img *VulkanImage) Layout() metadata.ImageLayout {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.layout
}

func (img *VulkanImage) SetLayout(layout metadata.ImageLayout) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.layout = layout
}

func imageUsage(desc metadata.ImageDesc) vk.ImageUsageFlags {
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit)
	if desc.Kind == metadata.ImageKindDepth {
		return usage | vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	// BGRA storage images are optional in Vulkan and rarely supported.
	if desc.Format != metadata.FormatB8G8R8A8Unorm {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	return usage
}

func imageAspect(kind metadata.ImageKind) vk.ImageAspectFlags {
	if kind == metadata.ImageKindDepth {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, fmt.Errorf("failed to create image view: %w", resultError(res))
	}
	return view, nil
}

/**
 * @brief Creates a 2D device local image, its memory and a view over it.
 */
func ImageCreate(context *VulkanContext, desc metadata.ImageDesc) (*VulkanImage, error) {
	format := vulkanFormat(desc.Format)
	if format == vk.FormatUndefined || desc.Resolution.Width == 0 || desc.Resolution.Height == 0 {
		return nil, fmt.Errorf("image %s %s: %w", desc.Format, desc.Resolution, core.ErrOutOfDeviceMemory)
	}
	img := &VulkanImage{
		Width:  desc.Resolution.Width,
		Height: desc.Resolution.Height,
		Format: format,
		Aspect: imageAspect(desc.Kind),
		Desc:   desc,
		owned:  true,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &img.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create image %s %s: %w", desc.Format, desc.Resolution, resultError(res))
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, img.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := context.allocateMemory(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.ImageDestroy(context)
		core.LogError(err.Error())
		return nil, err
	}
	img.Memory = memory

	if res := vk.BindImageMemory(context.Device.LogicalDevice, img.Handle, img.Memory, 0); res != vk.Success {
		img.ImageDestroy(context)
		err := fmt.Errorf("failed to bind image memory: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}

	view, err := createImageView(context, img.Handle, format, img.Aspect)
	if err != nil {
		img.ImageDestroy(context)
		core.LogError(err.Error())
		return nil, err
	}
	img.View = view
	return img, nil
}

func (img *VulkanImage) ImageDestroy(context *VulkanContext) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, img.View, context.Allocator)
		img.View = vk.NullImageView
	}
	if !img.owned {
		return
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, img.Memory, context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, img.Handle, context.Allocator)
		img.Handle = vk.NullImage
	}
}

func (vr *VulkanRenderer) AllocateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error) {
	img, err := ImageCreate(vr.context, desc)
	if err != nil {
		return 0, err
	}
	return metadata.ImageHandle(vr.context.images.Acquire(img)), nil
}

func (vr *VulkanRenderer) DestroyImage(handle metadata.ImageHandle) {
	img, err := vr.context.images.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy image: %s", err)
		return
	}
	img.ImageDestroy(vr.context)
}

func (vr *VulkanRenderer) ImageLayout(handle metadata.ImageHandle) metadata.ImageLayout {
	img, ok := vr.context.images.Get(uint32(handle))
	if !ok {
		return metadata.ImageLayoutUndefined
	}
	return img.Layout()
}

func (vr *VulkanRenderer) SetImageLayout(handle metadata.ImageHandle, layout metadata.ImageLayout) {
	if img, ok := vr.context.images.Get(uint32(handle)); ok {
		img.SetLayout(layout)
	}
}
