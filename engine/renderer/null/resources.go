package null

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type image struct {
	desc   metadata.ImageDesc
	layout metadata.ImageLayout
	data   []byte
}

type buffer struct {
	desc metadata.BufferDesc
	data []byte
}

type framebuffer struct {
	renderPass  metadata.RenderPassHandle
	attachments []metadata.ImageHandle
}

type renderPass struct {
	desc metadata.RenderPassDesc
}

type pipeline struct {
	state metadata.PipelineState
}

func (b *Backend) AllocateImage(desc metadata.ImageDesc) (metadata.ImageHandle, error) {
	if err := b.failure(OpAllocateImage); err != nil {
		return 0, err
	}
	if desc.Format == metadata.FormatUndefined || desc.Resolution.Width == 0 || desc.Resolution.Height == 0 {
		return 0, fmt.Errorf("image %s %s: %w", desc.Format, desc.Resolution, core.ErrOutOfDeviceMemory)
	}
	h := b.images.Acquire(&image{desc: desc, data: make([]byte, desc.Size())})
	return metadata.ImageHandle(h), nil
}

func (b *Backend) DestroyImage(handle metadata.ImageHandle) {
	if _, err := b.images.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy image: %s", err)
	}
}

func (b *Backend) image(handle metadata.ImageHandle) (*image, error) {
	img, ok := b.images.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("image %d: %w", handle, core.ErrInvalidHandle)
	}
	return img, nil
}

// ImageDesc returns the description the image was allocated with.
func (b *Backend) ImageDesc(handle metadata.ImageHandle) (metadata.ImageDesc, error) {
	img, err := b.image(handle)
	if err != nil {
		return metadata.ImageDesc{}, err
	}
	return img.desc, nil
}

// WriteImage replaces the contents of an image, as an upload would.
func (b *Backend) WriteImage(handle metadata.ImageHandle, data []byte) error {
	img, err := b.image(handle)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(img.data, data)
	return nil
}

// ReadImage returns a copy of the image contents.
func (b *Backend) ReadImage(handle metadata.ImageHandle) ([]byte, error) {
	img, err := b.image(handle)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(img.data))
	copy(out, img.data)
	return out, nil
}

func (b *Backend) AllocateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error) {
	if err := b.failure(OpAllocateBuffer); err != nil {
		return 0, err
	}
	if desc.Size == 0 {
		return 0, fmt.Errorf("zero sized buffer: %w", core.ErrOutOfDeviceMemory)
	}
	h := b.buffers.Acquire(&buffer{desc: desc, data: make([]byte, desc.Size)})
	return metadata.BufferHandle(h), nil
}

func (b *Backend) DestroyBuffer(handle metadata.BufferHandle) {
	if _, err := b.buffers.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy buffer: %s", err)
	}
}

func (b *Backend) buffer(handle metadata.BufferHandle) (*buffer, error) {
	buf, ok := b.buffers.Get(uint32(handle))
	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", handle, core.ErrInvalidHandle)
	}
	return buf, nil
}

func (b *Backend) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("write of %d bytes at %d past buffer %d of %d bytes: %w", len(data), offset, handle, buf.desc.Size, core.ErrMapFailed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(buf.data[offset:], data)
	return nil
}

func (b *Backend) ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error) {
	buf, err := b.buffer(handle)
	if err != nil {
		return nil, err
	}
	if offset+size > buf.desc.Size {
		return nil, fmt.Errorf("read of %d bytes at %d past buffer %d of %d bytes: %w", size, offset, handle, buf.desc.Size, core.ErrMapFailed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, size)
	copy(out, buf.data[offset:offset+size])
	return out, nil
}

func (b *Backend) CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error) {
	if desc.AttachmentCount() == 0 {
		return 0, fmt.Errorf("render pass without attachments: %w", core.ErrPipelineCompile)
	}
	return metadata.RenderPassHandle(b.renderPasses.Acquire(&renderPass{desc: desc})), nil
}

func (b *Backend) DestroyRenderPass(handle metadata.RenderPassHandle) {
	if _, err := b.renderPasses.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy render pass: %s", err)
	}
}

func (b *Backend) CreateFramebuffer(pass metadata.RenderPassHandle, attachments []metadata.ImageHandle) (metadata.FramebufferHandle, error) {
	if err := b.failure(OpCreateFramebuffer); err != nil {
		return 0, err
	}
	rp, ok := b.renderPasses.Get(uint32(pass))
	if !ok {
		return 0, fmt.Errorf("framebuffer render pass %d: %w", pass, core.ErrInvalidHandle)
	}
	if len(attachments) != rp.desc.AttachmentCount() {
		return 0, fmt.Errorf("framebuffer has %d attachments, render pass %d expects %d: %w",
			len(attachments), pass, rp.desc.AttachmentCount(), core.ErrInvalidHandle)
	}
	for _, a := range attachments {
		if _, err := b.image(a); err != nil {
			return 0, err
		}
	}
	fb := &framebuffer{renderPass: pass, attachments: append([]metadata.ImageHandle(nil), attachments...)}
	return metadata.FramebufferHandle(b.framebuffers.Acquire(fb)), nil
}

func (b *Backend) DestroyFramebuffer(handle metadata.FramebufferHandle) {
	if _, err := b.framebuffers.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy framebuffer: %s", err)
	}
}

func (b *Backend) CreatePipeline(state metadata.PipelineState) (metadata.PipelineHandle, error) {
	if err := b.failure(OpCreatePipeline); err != nil {
		return 0, err
	}
	if len(state.Stages) == 0 {
		return 0, fmt.Errorf("pipeline %q has no stages: %w", state.Name, core.ErrPipelineCompile)
	}
	for _, s := range state.Stages {
		if len(s.Code) == 0 {
			return 0, fmt.Errorf("pipeline %q stage %s has no code: %w", state.Name, s.Kind, core.ErrPipelineCompile)
		}
		compute := s.Kind == metadata.ShaderStageCompute
		if compute != (state.Kind == metadata.PipelineKindCompute) {
			return 0, fmt.Errorf("pipeline %q mixes stage %s into the wrong pipeline kind: %w", state.Name, s.Kind, core.ErrPipelineCompile)
		}
	}
	if state.Kind == metadata.PipelineKindGraphics {
		if _, ok := b.renderPasses.Get(uint32(state.RenderPass)); !ok {
			return 0, fmt.Errorf("pipeline %q render pass %d: %w", state.Name, state.RenderPass, core.ErrInvalidHandle)
		}
	}
	return metadata.PipelineHandle(b.pipelines.Acquire(&pipeline{state: state})), nil
}

func (b *Backend) DestroyPipeline(handle metadata.PipelineHandle) {
	if _, err := b.pipelines.Release(uint32(handle)); err != nil {
		core.LogWarn("destroy pipeline: %s", err)
	}
}
