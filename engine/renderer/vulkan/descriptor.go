package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

/**
 * @brief A native descriptor pool serving a single set shape.
 */
type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
	/** @brief The layout every set of this pool is allocated with. */
	Layout  vk.DescriptorSetLayout
	Shape   descriptor.Shape
	MaxSets uint32
	/** @brief Sets handed out since the last reset. */
	sets []metadata.DescriptorSetHandle
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Pool   metadata.DescriptorPoolHandle
	Shape  descriptor.Shape
}

// descriptorSetLayout returns the cached layout for shape, creating it on
// first use. Layouts live until the context is destroyed.
func (vc *VulkanContext) descriptorSetLayout(shape descriptor.Shape) (vk.DescriptorSetLayout, error) {
	key := shape.Key()
	var layout vk.DescriptorSetLayout
	err := vc.locks.SafeCall(DescriptorManagement, func() error {
		if l, ok := vc.setLayouts[key]; ok {
			layout = l
			return nil
		}
		bindings := make([]vk.DescriptorSetLayoutBinding, len(shape))
		for i, e := range shape {
			bindings[i] = vk.DescriptorSetLayoutBinding{
				Binding:         e.Slot,
				DescriptorType:  vulkanDescriptorType(e.Type),
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
			}
		}
		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if res := vk.CreateDescriptorSetLayout(vc.Device.LogicalDevice, &createInfo, vc.Allocator, &layout); res != vk.Success {
			return fmt.Errorf("vkCreateDescriptorSetLayout for shape %q: %w", key, resultError(res))
		}
		vc.setLayouts[key] = layout
		return nil
	})
	return layout, err
}

func (vc *VulkanContext) destroyDescriptorSetLayouts() {
	for key, layout := range vc.setLayouts {
		vk.DestroyDescriptorSetLayout(vc.Device.LogicalDevice, layout, vc.Allocator)
		delete(vc.setLayouts, key)
	}
}

// forgetSets drops the set handles of pool once the native pool has
// reclaimed them.
func (vc *VulkanContext) forgetSets(pool *VulkanDescriptorPool) {
	vc.setMu.Lock()
	for _, s := range pool.sets {
		delete(vc.sets, s)
	}
	vc.setMu.Unlock()
	pool.sets = pool.sets[:0]
}

func (vr *VulkanRenderer) CreateDescriptorPool(maxSets uint32, shape descriptor.Shape, sizes descriptor.Sizes) (metadata.DescriptorPoolHandle, error) {
	layout, err := vr.context.descriptorSetLayout(shape)
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	var poolSizes []vk.DescriptorPoolSize
	add := func(t vk.DescriptorType, n uint32) {
		if n > 0 {
			poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
		}
	}
	add(vk.DescriptorTypeUniformBuffer, sizes.UniformBuffers)
	add(vk.DescriptorTypeStorageBuffer, sizes.StorageBuffers)
	add(vk.DescriptorTypeStorageImage, sizes.StorageImages)
	if len(poolSizes) == 0 {
		// Vulkan rejects a pool without sizes.
		add(vk.DescriptorTypeUniformBuffer, 1)
	}

	pool := &VulkanDescriptorPool{Layout: layout, Shape: shape, MaxSets: maxSets}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	err = vr.context.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorPool(vr.context.Device.LogicalDevice, &createInfo, vr.context.Allocator, &pool.Handle); res != vk.Success {
			return fmt.Errorf("vkCreateDescriptorPool of %d sets: %w", maxSets, resultError(res))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return metadata.DescriptorPoolHandle(vr.context.descriptorPools.Acquire(pool)), nil
}

func (vr *VulkanRenderer) AllocateDescriptorSet(handle metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error) {
	pool, ok := vr.context.descriptorPools.Get(uint32(handle))
	if !ok {
		return 0, fmt.Errorf("descriptor pool %d: %w", handle, core.ErrInvalidHandle)
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{pool.Layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(vr.context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		// OutOfPoolMemory and FragmentedPool both map to ErrOutOfPoolMemory.
		return 0, fmt.Errorf("vkAllocateDescriptorSets from pool %d: %w", handle, resultError(res))
	}

	vr.context.setMu.Lock()
	vr.context.nextSet++
	h := vr.context.nextSet
	vr.context.sets[h] = &VulkanDescriptorSet{Handle: set, Pool: handle, Shape: pool.Shape}
	vr.context.setMu.Unlock()

	pool.sets = append(pool.sets, h)
	return h, nil
}

func (vr *VulkanRenderer) WriteDescriptorSet(handle metadata.DescriptorSetHandle, bindings []metadata.Binding) error {
	set, err := vr.context.descriptorSet(handle)
	if err != nil {
		return err
	}
	if !set.Shape.Equal(descriptor.ShapeOf(bindings)) {
		return fmt.Errorf("bindings %q do not match set shape %q: %w",
			descriptor.ShapeOf(bindings).Key(), set.Shape.Key(), core.ErrInvalidHandle)
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for _, b := range bindings {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      b.Slot,
			DescriptorCount: 1,
			DescriptorType:  vulkanDescriptorType(b.Type),
		}
		switch b.Type {
		case metadata.DescriptorTypeStorageImage:
			img, err := vr.context.image(b.Image)
			if err != nil {
				return err
			}
			// Dispatch moves storage images to General before binding.
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   img.View,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		default:
			buf, err := vr.context.buffer(b.Buffer)
			if err != nil {
				return err
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(buf.Size),
			}}
		}
		writes = append(writes, write)
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(vr.context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return nil
}

func (vr *VulkanRenderer) ResetDescriptorPool(handle metadata.DescriptorPoolHandle) error {
	pool, ok := vr.context.descriptorPools.Get(uint32(handle))
	if !ok {
		return fmt.Errorf("descriptor pool %d: %w", handle, core.ErrInvalidHandle)
	}
	if res := vk.ResetDescriptorPool(vr.context.Device.LogicalDevice, pool.Handle, 0); res != vk.Success {
		err := fmt.Errorf("vkResetDescriptorPool %d: %w", handle, resultError(res))
		core.LogError(err.Error())
		return err
	}
	vr.context.forgetSets(pool)
	return nil
}

func (vr *VulkanRenderer) DestroyDescriptorPool(handle metadata.DescriptorPoolHandle) {
	pool, err := vr.context.descriptorPools.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy descriptor pool: %s", err)
		return
	}
	vr.context.forgetSets(pool)
	_ = vr.context.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(vr.context.Device.LogicalDevice, pool.Handle, vr.context.Allocator)
		return nil
	})
	pool.Handle = vk.NullDescriptorPool
}
