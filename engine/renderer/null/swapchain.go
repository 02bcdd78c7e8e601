package null

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type swapchain struct {
	desc   metadata.ImageDesc
	images []metadata.ImageHandle
	next   uint32
	stale  bool
}

func (b *Backend) createSwapchain(width, height uint32) error {
	desc := metadata.ImageDesc{
		Resolution: metadata.Resolution{Width: width, Height: height},
		Format:     metadata.FormatB8G8R8A8Unorm,
		Kind:       metadata.ImageKindColor,
	}
	sc := &swapchain{desc: desc}
	for i := 0; i < b.opts.swapchainImages; i++ {
		h, err := b.AllocateImage(desc)
		if err != nil {
			return err
		}
		sc.images = append(sc.images, h)
	}
	b.mu.Lock()
	b.swapchain = sc
	b.mu.Unlock()
	return nil
}

func (b *Backend) destroySwapchain() {
	b.mu.Lock()
	sc := b.swapchain
	b.swapchain = nil
	b.mu.Unlock()
	if sc == nil {
		return
	}
	for _, h := range sc.images {
		b.DestroyImage(h)
	}
}

// Resized recreates the swapchain images at the new size.
func (b *Backend) Resized(width, height uint32) error {
	b.destroySwapchain()
	return b.createSwapchain(width, height)
}

// Invalidate marks the swapchain out of date, as a surface change would.
func (b *Backend) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.swapchain != nil {
		b.swapchain.stale = true
	}
}

func (b *Backend) SwapchainDesc() metadata.ImageDesc {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.swapchain == nil {
		return metadata.ImageDesc{}
	}
	return b.swapchain.desc
}

// AcquireNextImage returns the next image of the rotation.
func (b *Backend) AcquireNextImage(ctx context.Context) (uint32, metadata.ImageHandle, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := b.failure(OpAcquireNextImage); err != nil {
		return 0, 0, err
	}
	b.mu.Lock()
	sc := b.swapchain
	if sc == nil {
		b.mu.Unlock()
		return 0, 0, fmt.Errorf("acquire before initialize: %w", core.ErrInvalidHandle)
	}
	if sc.stale {
		desc := sc.desc
		b.mu.Unlock()
		data := core.EventContext{}
		data.Data.U32[0] = desc.Resolution.Width
		data.Data.U32[1] = desc.Resolution.Height
		core.EventFire(core.EVENT_CODE_SWAPCHAIN_OUT_OF_DATE, b, data)
		return 0, 0, core.ErrSwapchainOutOfDate
	}
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	image := sc.images[index]
	b.mu.Unlock()
	return index, image, nil
}

// Present hands the image back; it must not be written until acquired again.
func (b *Backend) Present(index uint32) error {
	b.mu.Lock()
	sc := b.swapchain
	if sc == nil || int(index) >= len(sc.images) {
		b.mu.Unlock()
		return fmt.Errorf("present of image %d: %w", index, core.ErrInvalidHandle)
	}
	image := sc.images[index]
	b.stats.Presents++
	b.mu.Unlock()
	b.SetImageLayout(image, metadata.ImageLayoutPresentSrc)
	return nil
}
