package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The shader module creation info. */
	CreateInfo vk.ShaderModuleCreateInfo
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderModule(context *VulkanContext, stage metadata.ShaderStage) (*VulkanShaderStage, error) {
	if len(stage.Code) == 0 {
		return nil, fmt.Errorf("shader %s.%s has no code: %w", stage.Name, stage.Kind, core.ErrPipelineCompile)
	}
	shaderStage := &VulkanShaderStage{}

	shaderStage.CreateInfo.SType = vk.StructureTypeShaderModuleCreateInfo
	// CodeSize is in bytes.
	shaderStage.CreateInfo.CodeSize = uint(len(stage.Code) * 4)
	shaderStage.CreateInfo.PCode = stage.Code

	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &shaderStage.CreateInfo, context.Allocator, &shaderStage.Handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreateShaderModule for %s.%s: %w: %w", stage.Name, stage.Kind, resultError(res), core.ErrPipelineCompile)
	}

	entry := stage.Entry
	if entry == "" {
		entry = "main"
	}

	// Shader stage info
	shaderStage.ShaderStageCreateInfo.SType = vk.StructureTypePipelineShaderStageCreateInfo
	shaderStage.ShaderStageCreateInfo.Stage = vulkanShaderStage(stage.Kind)
	shaderStage.ShaderStageCreateInfo.Module = shaderStage.Handle
	shaderStage.ShaderStageCreateInfo.PName = VulkanSafeString(entry)

	return shaderStage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
