package vulkan

import (
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
)

var _ renderer.RendererBackend = (*VulkanRenderer)(nil)

func init() {
	renderer.Register(core.BackendVulkan, func(cfg core.Config) (renderer.RendererBackend, error) {
		return New(WithValidation(cfg.Renderer.Validation)), nil
	})
}
