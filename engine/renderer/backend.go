package renderer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// RendererBackend is everything the renderer needs from a native API on top
// of what a frame graph allocates and submits through.
type RendererBackend interface {
	framegraph.Backend

	Name() string
	Initialize(appName string, width, height uint32) error
	Shutdown() error
	Resized(width, height uint32) error
	// WaitIdle blocks until every queue has drained.
	WaitIdle() error

	CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error)
	DestroyRenderPass(handle metadata.RenderPassHandle)
	CreatePipeline(state metadata.PipelineState) (metadata.PipelineHandle, error)
	DestroyPipeline(handle metadata.PipelineHandle)

	WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error
	ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error)

	SwapchainDesc() metadata.ImageDesc
	AcquireNextImage(ctx context.Context) (uint32, metadata.ImageHandle, error)
	Present(index uint32) error
}

// Factory builds an uninitialized backend from the configuration.
type Factory func(cfg core.Config) (RendererBackend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend selectable by name from the [renderer] config
// section. Backend packages call it from init. A second registration
// replaces the first.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend. Tests use it to restore the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available lists the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend builds the backend named by cfg.Renderer.Backend.
func NewBackend(cfg core.Config) (RendererBackend, error) {
	registryMu.RLock()
	factory, ok := factories[cfg.Renderer.Backend]
	registryMu.RUnlock()
	if !ok {
		err := fmt.Errorf("renderer backend %q is not registered (available: %v)", cfg.Renderer.Backend, Available())
		core.LogError(err.Error())
		return nil, err
	}
	backend, err := factory(cfg)
	if err != nil {
		err = fmt.Errorf("failed to create %s backend: %w", cfg.Renderer.Backend, err)
		core.LogError(err.Error())
		return nil, err
	}
	return backend, nil
}
