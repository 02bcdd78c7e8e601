package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle      vk.Buffer
	Memory      vk.DeviceMemory
	Size        uint64
	Usage       vk.BufferUsageFlags
	HostVisible bool
}

func BufferCreate(context *VulkanContext, desc metadata.BufferDesc) (*VulkanBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("zero sized buffer: %w", core.ErrOutOfDeviceMemory)
	}
	buf := &VulkanBuffer{
		Size:        desc.Size,
		Usage:       vulkanBufferUsage(desc.Usage),
		HostVisible: desc.HostVisible,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       buf.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &buf.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer of %d bytes: %w", desc.Size, resultError(res))
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buf.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := context.allocateMemory(memoryRequirements, properties)
	if err != nil {
		buf.Destroy(context)
		core.LogError(err.Error())
		return nil, err
	}
	buf.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buf.Handle, buf.Memory, 0); res != vk.Success {
		buf.Destroy(context)
		err := fmt.Errorf("failed to bind buffer memory: %w", resultError(res))
		core.LogError(err.Error())
		return nil, err
	}
	return buf, nil
}

func (buf *VulkanBuffer) Destroy(context *VulkanContext) {
	if buf.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, buf.Memory, context.Allocator)
		buf.Memory = vk.NullDeviceMemory
	}
	if buf.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, buf.Handle, context.Allocator)
		buf.Handle = vk.NullBuffer
	}
}

func (buf *VulkanBuffer) mapRange(context *VulkanContext, offset, size uint64) (unsafe.Pointer, error) {
	if !buf.HostVisible {
		return nil, fmt.Errorf("buffer is not host visible: %w", core.ErrMapFailed)
	}
	if offset+size > buf.Size {
		return nil, fmt.Errorf("range %d+%d past buffer of %d bytes: %w", offset, size, buf.Size, core.ErrMapFailed)
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, buf.Memory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		return nil, fmt.Errorf("vkMapMemory: %w", resultError(res))
	}
	return ptr, nil
}

// LoadData copies data into the buffer at offset.
func (buf *VulkanBuffer) LoadData(context *VulkanContext, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ptr, err := buf.mapRange(context, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(context.Device.LogicalDevice, buf.Memory)
	return nil
}

// ReadData copies size bytes out of the buffer starting at offset.
func (buf *VulkanBuffer) ReadData(context *VulkanContext, offset, size uint64) ([]byte, error) {
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	ptr, err := buf.mapRange(context, offset, size)
	if err != nil {
		return nil, err
	}
	copy(out, unsafe.Slice((*byte)(ptr), size))
	vk.UnmapMemory(context.Device.LogicalDevice, buf.Memory)
	return out, nil
}

func (vr *VulkanRenderer) AllocateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	buf, err := BufferCreate(vr.context, desc)
	if err != nil {
		return 0, err
	}
	return metadata.BufferHandle(vr.context.buffers.Acquire(buf)), nil
}

func (vr *VulkanRenderer) DestroyBuffer(handle metadata.BufferHandle) {
	buf, err := vr.context.buffers.Release(uint32(handle))
	if err != nil {
		core.LogWarn("destroy buffer: %s", err)
		return
	}
	buf.Destroy(vr.context)
}

func (vr *VulkanRenderer) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	buf, err := vr.context.buffer(handle)
	if err != nil {
		return err
	}
	if err := buf.LoadData(vr.context, offset, data); err != nil {
		err = fmt.Errorf("write buffer %d: %w", handle, err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (vr *VulkanRenderer) ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error) {
	buf, err := vr.context.buffer(handle)
	if err != nil {
		return nil, err
	}
	out, err := buf.ReadData(vr.context, offset, size)
	if err != nil {
		err = fmt.Errorf("read buffer %d: %w", handle, err)
		core.LogError(err.Error())
		return nil, err
	}
	return out, nil
}
