package null

import (
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
)

var _ renderer.RendererBackend = (*Backend)(nil)

func init() {
	renderer.Register(core.BackendNull, func(cfg core.Config) (renderer.RendererBackend, error) {
		return New(), nil
	})
}
