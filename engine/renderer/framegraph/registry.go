package framegraph

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Registry maps logical resources to the backend objects allocated for them
// at compile time.
type Registry struct {
	images       map[ResourceIndex]metadata.ImageHandle
	buffers      map[ResourceIndex]metadata.BufferHandle
	framebuffers map[ResourceIndex]metadata.FramebufferHandle
}

func newRegistry() *Registry {
	return &Registry{
		images:       make(map[ResourceIndex]metadata.ImageHandle),
		buffers:      make(map[ResourceIndex]metadata.BufferHandle),
		framebuffers: make(map[ResourceIndex]metadata.FramebufferHandle),
	}
}

func dangling(id ResourceIndex) error {
	return &core.ConfigurationError{Resource: uint32(id), Err: core.ErrDanglingResource}
}

func (r *Registry) Image(res Resource[Image]) (metadata.ImageHandle, error) {
	h, ok := r.images[res.id]
	if !ok {
		return 0, dangling(res.id)
	}
	return h, nil
}

func (r *Registry) Framebuffer(res Resource[Framebuffer]) (metadata.FramebufferHandle, error) {
	h, ok := r.framebuffers[res.id]
	if !ok {
		return 0, dangling(res.id)
	}
	return h, nil
}

// LookupBuffer resolves a typed buffer handle.
func LookupBuffer[D any](r *Registry, res Resource[Buffer[D]]) (metadata.BufferHandle, error) {
	h, ok := r.buffers[res.id]
	if !ok {
		return 0, dangling(res.id)
	}
	return h, nil
}

func (r *Registry) Has(id ResourceIndex) bool {
	if _, ok := r.images[id]; ok {
		return true
	}
	if _, ok := r.buffers[id]; ok {
		return true
	}
	_, ok := r.framebuffers[id]
	return ok
}

// Len is the number of registered resources.
func (r *Registry) Len() int {
	return len(r.images) + len(r.buffers) + len(r.framebuffers)
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(images=%d, buffers=%d, framebuffers=%d)", len(r.images), len(r.buffers), len(r.framebuffers))
}
