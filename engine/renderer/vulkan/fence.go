package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("failed to create fence: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence signals or timeoutNs passes.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		err := fmt.Errorf("vk_fence_wait timed out after %dns: %w", timeoutNs, core.ErrDeviceLost)
		core.LogWarn(err.Error())
		return err
	}
	err := fmt.Errorf("vk_fence_wait: %w", resultError(result))
	core.LogError(err.Error())
	return err
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		err := fmt.Errorf("failed to reset fence: %w", resultError(res))
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

func (vr *VulkanRenderer) CreateFence() (metadata.FenceHandle, error) {
	f, err := NewFence(vr.context, false)
	if err != nil {
		return 0, err
	}
	return metadata.FenceHandle(vr.context.fences.Acquire(f)), nil
}

func (vr *VulkanRenderer) WaitForFence(handle metadata.FenceHandle) error {
	f, err := vr.context.fence(handle)
	if err != nil {
		return err
	}
	return f.FenceWait(vr.context, vk.MaxUint64)
}

func (vr *VulkanRenderer) DestroyFence(handle metadata.FenceHandle) {
	f, err := vr.context.fences.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy fence: %s", err)
		return
	}
	f.FenceDestroy(vr.context)
}
