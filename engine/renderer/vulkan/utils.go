package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultNames = map[vk.Result]string{
	vk.Success:                          "VK_SUCCESS",
	vk.NotReady:                         "VK_NOT_READY",
	vk.Timeout:                          "VK_TIMEOUT",
	vk.EventSet:                         "VK_EVENT_SET",
	vk.EventReset:                       "VK_EVENT_RESET",
	vk.Incomplete:                       "VK_INCOMPLETE",
	vk.Suboptimal:                       "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:             "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:           "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:        "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:                  "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:             "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:             "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:         "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:           "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:              "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:          "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:              "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:                 "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:           "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:                   "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:         "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorInvalidShaderNv:             "VK_ERROR_INVALID_SHADER_NV",
	vk.ErrorOutOfPoolMemory:             "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle:       "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:               "VK_ERROR_FRAGMENTATION",
	vk.ErrorFullScreenExclusiveModeLost: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
	vk.ErrorUnknown:                     "VK_ERROR_UNKNOWN",
}

func VulkanResultString(result vk.Result) string {
	if name, ok := resultNames[result]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// VulkanResultIsSuccess reports whether result is one of the success codes,
// which are all non-negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// resultError maps a failed call to the matching core error. Success maps
// to nil; every other code keeps its readable name.
func resultError(result vk.Result) error {
	if result == vk.Success {
		return nil
	}
	var sentinel error
	switch result {
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfHostMemory, vk.ErrorTooManyObjects:
		sentinel = core.ErrOutOfDeviceMemory
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool, vk.ErrorFragmentation:
		sentinel = core.ErrOutOfPoolMemory
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost:
		sentinel = core.ErrDeviceLost
	case vk.ErrorOutOfDate:
		sentinel = core.ErrSwapchainOutOfDate
	case vk.Suboptimal:
		sentinel = core.ErrSwapchainSuboptimal
	case vk.ErrorMemoryMapFailed:
		sentinel = core.ErrMapFailed
	case vk.ErrorInvalidShaderNv:
		sentinel = core.ErrPipelineCompile
	default:
		sentinel = core.ErrUnknown
	}
	return fmt.Errorf("%s: %w", VulkanResultString(result), sentinel)
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// fixedString reads a NUL terminated name out of a fixed size array.
func fixedString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

func vulkanFormat(f metadata.Format) vk.Format {
	switch f {
	case metadata.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatR32G32B32A32Sfloat:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatR32G32Sfloat:
		return vk.FormatR32g32Sfloat
	case metadata.FormatR32G32B32Sfloat:
		return vk.FormatR32g32b32Sfloat
	case metadata.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func metadataFormat(f vk.Format) metadata.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FormatB8G8R8A8Unorm
	case vk.FormatR16g16b16a16Sfloat:
		return metadata.FormatR16G16B16A16Sfloat
	case vk.FormatR32g32b32a32Sfloat:
		return metadata.FormatR32G32B32A32Sfloat
	case vk.FormatR32g32Sfloat:
		return metadata.FormatR32G32Sfloat
	case vk.FormatR32g32b32Sfloat:
		return metadata.FormatR32G32B32Sfloat
	case vk.FormatD32Sfloat:
		return metadata.FormatD32Sfloat
	}
	return metadata.FormatUndefined
}

func vulkanLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var accessBits = []struct {
	access metadata.Access
	bits   vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}{
	{metadata.AccessShaderRead, vk.AccessShaderReadBit, vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit},
	{metadata.AccessShaderWrite, vk.AccessShaderWriteBit, vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit},
	{metadata.AccessColorAttachment, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.PipelineStageColorAttachmentOutputBit},
	{metadata.AccessDepthAttachment, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit},
	{metadata.AccessTransferRead, vk.AccessTransferReadBit, vk.PipelineStageTransferBit},
	{metadata.AccessTransferWrite, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit},
	{metadata.AccessMemoryRead, vk.AccessMemoryReadBit, vk.PipelineStageAllCommandsBit},
	{metadata.AccessMemoryWrite, vk.AccessMemoryWriteBit, vk.PipelineStageAllCommandsBit},
	{metadata.AccessVertexAttribute, vk.AccessVertexAttributeReadBit, vk.PipelineStageVertexInputBit},
	{metadata.AccessIndexRead, vk.AccessIndexReadBit, vk.PipelineStageVertexInputBit},
	{metadata.AccessUniformRead, vk.AccessUniformReadBit, vk.PipelineStageVertexShaderBit | vk.PipelineStageComputeShaderBit | vk.PipelineStageFragmentShaderBit},
}

// vulkanAccess converts an access mask and returns the pipeline stages that
// perform it. No access waits on (or blocks) nothing, which is top of pipe
// on the source side and bottom of pipe on the destination side.
func vulkanAccess(a metadata.Access, src bool) (vk.AccessFlags, vk.PipelineStageFlags) {
	var flags vk.AccessFlags
	var stages vk.PipelineStageFlags
	for _, e := range accessBits {
		if a&e.access != 0 {
			flags |= vk.AccessFlags(e.bits)
			stages |= vk.PipelineStageFlags(e.stage)
		}
	}
	if stages == 0 {
		if src {
			stages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		} else {
			stages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		}
	}
	return flags, stages
}

func vulkanDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func vulkanBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	// every buffer can take part in copies
	flags := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	if u&metadata.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&metadata.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&metadata.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&metadata.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	return flags
}

func vulkanBindPoint(kind metadata.PipelineKind) vk.PipelineBindPoint {
	if kind == metadata.PipelineKindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func vulkanShaderStage(kind metadata.ShaderStageKind) vk.ShaderStageFlagBits {
	switch kind {
	case metadata.ShaderStageVertex:
		return vk.ShaderStageVertexBit
	case metadata.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageComputeBit
}
