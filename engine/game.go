package engine

import (
	"context"

	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/systems"
)

// Game is what the engine drives. Renderer and Jobs are set by the engine
// before FnInitialize runs.
type Game struct {
	Renderer *renderer.Renderer
	Jobs     *systems.JobSystem
	State    interface{}
	// FallbackShaders is used on the null backend when the shader
	// directory cannot be read.
	FallbackShaders renderer.ShaderSource

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(ctx context.Context, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
