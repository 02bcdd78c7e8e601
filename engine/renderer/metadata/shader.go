package metadata

import "fmt"

/** @brief The descriptor type of one shader binding slot. */
type DescriptorType int

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeStorageBuffer
	DescriptorTypeStorageImage
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeUniformBuffer:
		return "uniform"
	case DescriptorTypeStorageBuffer:
		return "storage"
	case DescriptorTypeStorageImage:
		return "storage_image"
	}
	return fmt.Sprintf("DescriptorType(%d)", int(t))
}

/** @brief How a shader uses a bound resource. */
type ShaderAccess int

const (
	ShaderAccessRead ShaderAccess = iota
	ShaderAccessWrite
	ShaderAccessReadWrite
)

/**
 * @brief Binds one resource to a shader slot.
 */
type Binding struct {
	/** @brief The binding slot in the set. */
	Slot uint32
	/** @brief The descriptor type of the slot. */
	Type DescriptorType
	/** @brief Declared shader access. */
	Access ShaderAccess
	/** @brief Buffer bound to uniform and storage slots. */
	Buffer BufferHandle
	/** @brief Image bound to storage image slots. */
	Image ImageHandle
}

func UniformBinding(slot uint32, buffer BufferHandle) Binding {
	return Binding{Slot: slot, Type: DescriptorTypeUniformBuffer, Access: ShaderAccessRead, Buffer: buffer}
}

func StorageBinding(slot uint32, buffer BufferHandle, access ShaderAccess) Binding {
	return Binding{Slot: slot, Type: DescriptorTypeStorageBuffer, Access: access, Buffer: buffer}
}

func StorageImageBinding(slot uint32, image ImageHandle, access ShaderAccess) Binding {
	return Binding{Slot: slot, Type: DescriptorTypeStorageImage, Access: access, Image: image}
}

/** @brief The ordered bindings of one descriptor set. */
type ShaderArguments []Binding

/** @brief Native descriptor pool handle. */
type DescriptorPoolHandle uint32

/** @brief Native descriptor set handle. */
type DescriptorSetHandle uint64
