package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanContext holds the instance level objects and every object handed
// out to callers, keyed by the small integer handles of the metadata package.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	images          *core.HandleTable[*VulkanImage]
	buffers         *core.HandleTable[*VulkanBuffer]
	framebuffers    *core.HandleTable[*VulkanFramebuffer]
	renderPasses    *core.HandleTable[*VulkanRenderpass]
	pipelines       *core.HandleTable[*VulkanPipeline]
	descriptorPools *core.HandleTable[*VulkanDescriptorPool]
	fences          *core.HandleTable[*VulkanFence]

	setMu      sync.Mutex
	sets       map[metadata.DescriptorSetHandle]*VulkanDescriptorSet
	nextSet    metadata.DescriptorSetHandle
	setLayouts map[string]vk.DescriptorSetLayout

	locks *VulkanLockPool
}

func newVulkanContext() *VulkanContext {
	return &VulkanContext{
		Allocator:       nil,
		Surface:         vk.NullSurface,
		Device:          &VulkanDevice{},
		images:          core.NewHandleTable[*VulkanImage](),
		buffers:         core.NewHandleTable[*VulkanBuffer](),
		framebuffers:    core.NewHandleTable[*VulkanFramebuffer](),
		renderPasses:    core.NewHandleTable[*VulkanRenderpass](),
		pipelines:       core.NewHandleTable[*VulkanPipeline](),
		descriptorPools: core.NewHandleTable[*VulkanDescriptorPool](),
		fences:          core.NewHandleTable[*VulkanFence](),
		sets:            make(map[metadata.DescriptorSetHandle]*VulkanDescriptorSet),
		setLayouts:      make(map[string]vk.DescriptorSetLayout),
		locks:           NewVulkanLockPool(),
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocateMemory allocates memory matching reqs with the given properties.
func (vc *VulkanContext) allocateMemory(reqs vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := vc.FindMemoryIndex(reqs.MemoryTypeBits, uint32(properties))
	if index < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("no memory type for %d bytes with properties %#x: %w", reqs.Size, uint32(properties), core.ErrOutOfDeviceMemory)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vc.Device.LogicalDevice, &info, vc.Allocator, &memory); res != vk.Success {
		return vk.NullDeviceMemory, fmt.Errorf("vkAllocateMemory of %d bytes: %w", reqs.Size, resultError(res))
	}
	return memory, nil
}

func (vc *VulkanContext) image(handle metadata.ImageHandle) (*VulkanImage, error) {
	img, ok := vc.images.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("image %d: %w", handle, core.ErrInvalidHandle)
	}
	return img, nil
}

func (vc *VulkanContext) buffer(handle metadata.BufferHandle) (*VulkanBuffer, error) {
	buf, ok := vc.buffers.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", handle, core.ErrInvalidHandle)
	}
	return buf, nil
}

func (vc *VulkanContext) renderPass(handle metadata.RenderPassHandle) (*VulkanRenderpass, error) {
	rp, ok := vc.renderPasses.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("render pass %d: %w", handle, core.ErrInvalidHandle)
	}
	return rp, nil
}

func (vc *VulkanContext) framebuffer(handle metadata.FramebufferHandle) (*VulkanFramebuffer, error) {
	fb, ok := vc.framebuffers.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("framebuffer %d: %w", handle, core.ErrInvalidHandle)
	}
	return fb, nil
}

func (vc *VulkanContext) pipeline(handle metadata.PipelineHandle) (*VulkanPipeline, error) {
	p, ok := vc.pipelines.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("pipeline %d: %w", handle, core.ErrInvalidHandle)
	}
	return p, nil
}

func (vc *VulkanContext) fence(handle metadata.FenceHandle) (*VulkanFence, error) {
	f, ok := vc.fences.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("fence %d: %w", handle, core.ErrInvalidHandle)
	}
	return f, nil
}

func (vc *VulkanContext) descriptorSet(handle metadata.DescriptorSetHandle) (*VulkanDescriptorSet, error) {
	vc.setMu.Lock()
	defer vc.setMu.Unlock()
	s, ok := vc.sets[handle]
	if !ok {
		return nil, fmt.Errorf("descriptor set %d: %w", handle, core.ErrInvalidHandle)
	}
	return s, nil
}
