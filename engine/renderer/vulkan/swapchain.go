package vulkan

import (
	"context"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/math"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanSwapchain is either a real swapchain over a surface or, when the
// context has no surface, a rotation of offscreen images standing in for
// one. Both register their images in the context's image table.
type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []metadata.ImageHandle

	acquireFence *VulkanFence
	// next is the offscreen rotation cursor.
	next uint32
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width, height, offscreenImages uint32) (*VulkanSwapchain, error) {
	if context.Surface == vk.NullSurface {
		return createOffscreenSwapchain(context, width, height, offscreenImages)
	}
	return createSwapchain(context, width, height)
}

func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	images := vs.ImageCount
	// Destroy the old and create a new one.
	vs.destroySwapchain(context)
	return SwapchainCreate(context, width, height, images)
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	vs.destroySwapchain(context)
}

func (vs *VulkanSwapchain) Desc() metadata.ImageDesc {
	return metadata.ImageDesc{
		Resolution: metadata.Resolution{Width: vs.Extent.Width, Height: vs.Extent.Height},
		Format:     metadataFormat(vs.ImageFormat.Format),
		Kind:       metadata.ImageKindColor,
	}
}

func createOffscreenSwapchain(context *VulkanContext, width, height, imageCount uint32) (*VulkanSwapchain, error) {
	if imageCount == 0 {
		imageCount = 3
	}
	swapchain := &VulkanSwapchain{
		ImageFormat: vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		Handle:      vk.NullSwapchain,
		Extent:      vk.Extent2D{Width: width, Height: height},
		ImageCount:  imageCount,
	}
	desc := swapchain.Desc()
	for i := uint32(0); i < imageCount; i++ {
		img, err := ImageCreate(context, desc)
		if err != nil {
			swapchain.destroySwapchain(context)
			return nil, err
		}
		swapchain.Images = append(swapchain.Images, metadata.ImageHandle(context.images.Acquire(img)))
	}
	core.LogInfo("Offscreen swapchain created with %d images of %s.", imageCount, desc.Resolution)
	return swapchain, nil
}

func createSwapchain(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	support := &context.Device.SwapchainSupport
	if support.FormatCount == 0 {
		err := fmt.Errorf("surface reports no formats: %w", core.ErrSwapchainOutOfDate)
		core.LogError(err.Error())
		return nil, err
	}
	swapchain := &VulkanSwapchain{}

	swapchainExtent := vk.Extent2D{
		Width:  width,
		Height: height,
	}

	// Choose a swap surface format.
	found := false
	for i := 0; i < int(support.FormatCount); i++ {
		format := support.Formats[i]
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			found = true
			break
		}
	}
	if !found {
		swapchain.ImageFormat = support.Formats[0]
	}

	presentMode := vk.PresentModeFifo
	for i := 0; i < int(support.PresentModeCount); i++ {
		mode := support.PresentModes[i]
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Swapchain extent
	if support.Capabilities.CurrentExtent.Width != ^uint32(0) {
		swapchainExtent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = math.Clamp(swapchainExtent.Width, minExtent.Width, maxExtent.Width)
	swapchainExtent.Height = math.Clamp(swapchainExtent.Height, minExtent.Height, maxExtent.Height)
	swapchain.Extent = swapchainExtent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		// The frame graph copies its output into the backbuffer.
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit | vk.ImageUsageTransferSrcBit),
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	swapchainCreateInfo.PreTransform = support.Capabilities.CurrentTransform
	swapchainCreateInfo.CompositeAlpha = vk.CompositeAlphaOpaqueBit
	swapchainCreateInfo.PresentMode = presentMode
	swapchainCreateInfo.Clipped = vk.True
	swapchainCreateInfo.OldSwapchain = vk.NullSwapchain

	err := context.locks.SafeCall(SwapchainManagement, func() error {
		if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchain.Handle); res != vk.Success {
			return fmt.Errorf("failed to create swapchain: %w", resultError(res))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	// Images
	swapchain.ImageCount = 0
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		swapchain.destroySwapchain(context)
		err := fmt.Errorf("failed to get swapchain images: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	images := make([]vk.Image, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, images); res != vk.Success {
		swapchain.destroySwapchain(context)
		err := fmt.Errorf("failed to get swapchain images: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}

	desc := swapchain.Desc()
	aspect := imageAspect(metadata.ImageKindColor)
	for _, image := range images {
		view, err := createImageView(context, image, swapchain.ImageFormat.Format, aspect)
		if err != nil {
			swapchain.destroySwapchain(context)
			core.LogError(err.Error())
			return nil, err
		}
		img := &VulkanImage{
			Handle: image,
			View:   view,
			Width:  swapchainExtent.Width,
			Height: swapchainExtent.Height,
			Format: swapchain.ImageFormat.Format,
			Aspect: aspect,
			Desc:   desc,
			// Owned by the swapchain and destroyed with it.
			owned: false,
		}
		swapchain.Images = append(swapchain.Images, metadata.ImageHandle(context.images.Acquire(img)))
	}

	fence, err := NewFence(context, false)
	if err != nil {
		swapchain.destroySwapchain(context)
		return nil, err
	}
	swapchain.acquireFence = fence

	core.LogInfo("Swapchain created successfully.")
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroySwapchain(context *VulkanContext) {
	vk.DeviceWaitIdle(context.Device.LogicalDevice)

	for _, h := range vs.Images {
		img, err := context.images.Release(uint32(h))
		if err != nil {
			continue
		}
		img.ImageDestroy(context)
	}
	vs.Images = nil

	if vs.acquireFence != nil {
		vs.acquireFence.FenceDestroy(context)
		vs.acquireFence = nil
	}
	if vs.Handle != vk.NullSwapchain {
		_ = context.locks.SafeCall(SwapchainManagement, func() error {
			vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
			return nil
		})
		vs.Handle = vk.NullSwapchain
	}
}

// acquireTimeout converts the context deadline to a Vulkan timeout.
func acquireTimeout(ctx context.Context) uint64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return vk.MaxUint64
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0
	}
	return uint64(left.Nanoseconds())
}

func (vs *VulkanSwapchain) outOfDate(context *VulkanContext) error {
	data := core.EventContext{}
	data.Data.U32[0] = context.FramebufferWidth
	data.Data.U32[1] = context.FramebufferHeight
	core.EventFire(core.EVENT_CODE_SWAPCHAIN_OUT_OF_DATE, vs, data)
	return core.ErrSwapchainOutOfDate
}

// SwapchainAcquireNextImageIndex returns the index of the next image the
// caller may render into.
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(ctx context.Context, context *VulkanContext) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if vs.Handle == vk.NullSwapchain {
		index := vs.next
		vs.next = (vs.next + 1) % vs.ImageCount
		return index, nil
	}

	var index uint32
	var result vk.Result
	_ = context.locks.SafeCall(SwapchainManagement, func() error {
		result = vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, acquireTimeout(ctx), vk.NullSemaphore, vs.acquireFence.Handle, &index)
		return nil
	})

	switch result {
	case vk.Success:
	case vk.Suboptimal:
		core.LogDebug("swapchain is suboptimal, image %d acquired anyway", index)
	case vk.ErrorOutOfDate:
		// The renderer recreates the swapchain and skips the frame.
		return 0, vs.outOfDate(context)
	case vk.Timeout, vk.NotReady:
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("acquire of swapchain image timed out")
	default:
		err := fmt.Errorf("failed to acquire swapchain image: %w", resultError(result))
		core.LogError(err.Error())
		return 0, err
	}

	// No semaphores are used, so the image is ready once the fence signals.
	if err := vs.acquireFence.FenceWait(context, vk.MaxUint64); err != nil {
		return 0, err
	}
	if err := vs.acquireFence.FenceReset(context); err != nil {
		return 0, err
	}
	return index, nil
}

// SwapchainPresent hands image index back to the presentation engine.
// Queue submissions for the frame have already completed.
func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, presentImageIndex uint32) error {
	if vs.Handle == vk.NullSwapchain {
		return nil
	}
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{presentImageIndex},
	}

	family := uint32(context.Device.PresentQueueIndex)
	var result vk.Result
	_ = context.locks.SafeQueueCall(family, func() error {
		result = vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
		return nil
	})

	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate:
		return vs.outOfDate(context)
	case vk.Suboptimal:
		return core.ErrSwapchainSuboptimal
	}
	err := fmt.Errorf("failed to present swap chain image: %w", resultError(result))
	core.LogError(err.Error())
	return err
}
