package framegraph

import (
	"context"

	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type fakeBackend struct {
	images       []metadata.ImageDesc
	buffers      []metadata.BufferDesc
	framebuffers [][]metadata.ImageHandle

	destroyedImages       []metadata.ImageHandle
	destroyedBuffers      []metadata.BufferHandle
	destroyedFramebuffers []metadata.FramebufferHandle

	submitted  []*command.List
	workers    []cmdpool.WorkerID
	failSubmit error
	failImage  error
	failBuffer error

	descriptorPools int
	descriptorSets  metadata.DescriptorSetHandle
	poolResets      int
}

func (b *fakeBackend) AllocateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error) {
	if b.failImage != nil {
		return 0, b.failImage
	}
	b.images = append(b.images, desc)
	return metadata.ImageHandle(100 + len(b.images)), nil
}

func (b *fakeBackend) DestroyImage(image metadata.ImageHandle) {
	b.destroyedImages = append(b.destroyedImages, image)
}

func (b *fakeBackend) AllocateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	if b.failBuffer != nil {
		return 0, b.failBuffer
	}
	b.buffers = append(b.buffers, desc)
	return metadata.BufferHandle(200 + len(b.buffers)), nil
}

func (b *fakeBackend) DestroyBuffer(buffer metadata.BufferHandle) {
	b.destroyedBuffers = append(b.destroyedBuffers, buffer)
}

func (b *fakeBackend) CreateFramebuffer(renderPass metadata.RenderPassHandle, attachments []metadata.ImageHandle) (metadata.FramebufferHandle, error) {
	b.framebuffers = append(b.framebuffers, attachments)
	return metadata.FramebufferHandle(300 + len(b.framebuffers)), nil
}

func (b *fakeBackend) DestroyFramebuffer(framebuffer metadata.FramebufferHandle) {
	b.destroyedFramebuffers = append(b.destroyedFramebuffers, framebuffer)
}

// SubmitCommands allocates a descriptor set for every command carrying
// arguments, the way a real backend would while translating.
func (b *fakeBackend) SubmitCommands(ctx context.Context, worker cmdpool.WorkerID, pool *descriptor.Pool, list *command.List) error {
	b.workers = append(b.workers, worker)
	for _, s := range list.Submits() {
		for _, c := range s.Commands {
			switch c := c.(type) {
			case command.Draw:
				if len(c.Arguments) > 0 {
					if _, err := pool.Allocate(c.Arguments); err != nil {
						return err
					}
				}
			case command.Dispatch:
				if _, err := pool.Allocate(c.Arguments); err != nil {
					return err
				}
			}
		}
	}
	if b.failSubmit != nil {
		return b.failSubmit
	}
	b.submitted = append(b.submitted, list)
	return nil
}

func (b *fakeBackend) CreateDescriptorPool(maxSets uint32, shape descriptor.Shape, sizes descriptor.Sizes) (metadata.DescriptorPoolHandle, error) {
	b.descriptorPools++
	return metadata.DescriptorPoolHandle(b.descriptorPools), nil
}

func (b *fakeBackend) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error) {
	b.descriptorSets++
	return b.descriptorSets, nil
}

func (b *fakeBackend) WriteDescriptorSet(set metadata.DescriptorSetHandle, bindings []metadata.Binding) error {
	return nil
}

func (b *fakeBackend) ResetDescriptorPool(pool metadata.DescriptorPoolHandle) error {
	b.poolResets++
	return nil
}

func (b *fakeBackend) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {}

var colorDesc = metadata.ImageDesc{
	Resolution: metadata.Resolution{Width: 64, Height: 64},
	Format:     metadata.FormatR8G8B8A8Unorm,
}

func newTestGraph() (*Framegraph, *fakeBackend) {
	b := &fakeBackend{}
	return New(Context{Backend: b}, WithName("test")), b
}
