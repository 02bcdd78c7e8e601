package submission

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// layoutTracker stages the layout changes of one submit. They reach the
// device only once the submit completed; later commands of the same submit
// already see them.
type layoutTracker[B any] struct {
	device  Device[B]
	pending map[metadata.ImageHandle]metadata.ImageLayout
	order   []metadata.ImageHandle
}

func newLayoutTracker[B any](device Device[B]) *layoutTracker[B] {
	return &layoutTracker[B]{device: device, pending: make(map[metadata.ImageHandle]metadata.ImageLayout)}
}

func (t *layoutTracker[B]) get(image metadata.ImageHandle) metadata.ImageLayout {
	if l, ok := t.pending[image]; ok {
		return l
	}
	return t.device.ImageLayout(image)
}

func (t *layoutTracker[B]) set(image metadata.ImageHandle, layout metadata.ImageLayout) {
	if _, ok := t.pending[image]; !ok {
		t.order = append(t.order, image)
	}
	t.pending[image] = layout
}

func (t *layoutTracker[B]) apply() {
	for _, image := range t.order {
		t.device.SetImageLayout(image, t.pending[image])
	}
}

func (e *Engine[P, B]) translate(enc Encoder, pool *descriptor.Pool, layouts *layoutTracker[B], c command.Command) error {
	switch c := c.(type) {
	case command.CopyImage:
		e.copyImage(enc, layouts, c)
	case command.CopyBuffer:
		copyBuffer(enc, c)
	case command.Draw:
		return e.draw(enc, pool, c)
	case command.Dispatch:
		return e.dispatch(enc, pool, layouts, c)
	default:
		return fmt.Errorf("unsupported command %T", c)
	}
	return nil
}

// restoreLayout is where an image goes back to after a transfer. Undefined
// contents cannot be restored, so those images end up General.
func restoreLayout(l metadata.ImageLayout) metadata.ImageLayout {
	if l == metadata.ImageLayoutUndefined {
		return metadata.ImageLayoutGeneral
	}
	return l
}

func (e *Engine[P, B]) copyImage(enc Encoder, layouts *layoutTracker[B], c command.CopyImage) {
	srcOld := layouts.get(c.Src)
	dstOld := layouts.get(c.Dst)

	enc.ImageBarrier(
		ImageBarrier{
			Image:     c.Src,
			OldLayout: srcOld,
			NewLayout: metadata.ImageLayoutTransferSrc,
			SrcAccess: metadata.LayoutAccess(srcOld),
			DstAccess: metadata.AccessTransferRead,
		},
		ImageBarrier{
			Image:     c.Dst,
			OldLayout: dstOld,
			NewLayout: metadata.ImageLayoutTransferDst,
			SrcAccess: metadata.LayoutAccess(dstOld),
			DstAccess: metadata.AccessTransferWrite,
		},
	)
	enc.CopyImage(c.Src, c.Dst, metadata.ImageLayoutTransferSrc, metadata.ImageLayoutTransferDst)

	srcNew, dstNew := restoreLayout(srcOld), restoreLayout(dstOld)
	enc.ImageBarrier(
		ImageBarrier{
			Image:     c.Src,
			OldLayout: metadata.ImageLayoutTransferSrc,
			NewLayout: srcNew,
			SrcAccess: metadata.AccessTransferRead,
			DstAccess: metadata.LayoutAccess(srcNew),
		},
		ImageBarrier{
			Image:     c.Dst,
			OldLayout: metadata.ImageLayoutTransferDst,
			NewLayout: dstNew,
			SrcAccess: metadata.AccessTransferWrite,
			DstAccess: metadata.AccessMemoryRead,
		},
	)
	layouts.set(c.Src, srcNew)
	layouts.set(c.Dst, dstNew)
}

func copyBuffer(enc Encoder, c command.CopyBuffer) {
	enc.BufferBarrier(
		BufferBarrier{Buffer: c.Src, SrcAccess: metadata.AccessMemoryWrite, DstAccess: metadata.AccessTransferRead},
		BufferBarrier{Buffer: c.Dst, SrcAccess: metadata.AccessMemoryRead | metadata.AccessMemoryWrite, DstAccess: metadata.AccessTransferWrite},
	)
	enc.CopyBuffer(c.Src, c.Dst, c.Size)
	enc.BufferBarrier(
		BufferBarrier{Buffer: c.Dst, SrcAccess: metadata.AccessTransferWrite, DstAccess: metadata.AccessMemoryRead},
	)
}

func (e *Engine[P, B]) draw(enc Encoder, pool *descriptor.Pool, c command.Draw) error {
	var set metadata.DescriptorSetHandle
	if len(c.Arguments) > 0 {
		h, err := pool.Allocate(c.Arguments)
		if err != nil {
			return err
		}
		set = h.Set
	}

	enc.BeginRenderPass(c.RenderPass, c.Framebuffer)
	enc.BindPipeline(metadata.PipelineKindGraphics, c.Pipeline)
	if set != 0 {
		enc.BindDescriptorSet(metadata.PipelineKindGraphics, c.Pipeline, set)
	}
	if c.Vertex != 0 {
		enc.BindVertexBuffer(c.Vertex)
	}
	if c.Index != 0 {
		enc.BindIndexBuffer(c.Index)
	}
	enc.DrawIndexed(c.Range.First, c.Range.Count)
	enc.EndRenderPass()
	return nil
}

// dispatch moves every storage image the shader sees to General first.
func (e *Engine[P, B]) dispatch(enc Encoder, pool *descriptor.Pool, layouts *layoutTracker[B], c command.Dispatch) error {
	var barriers []ImageBarrier
	for _, b := range c.Arguments {
		if b.Type != metadata.DescriptorTypeStorageImage {
			continue
		}
		old := layouts.get(b.Image)
		if old == metadata.ImageLayoutGeneral {
			continue
		}
		barriers = append(barriers, ImageBarrier{
			Image:     b.Image,
			OldLayout: old,
			NewLayout: metadata.ImageLayoutGeneral,
			SrcAccess: metadata.LayoutAccess(old),
			DstAccess: metadata.AccessShaderRead | metadata.AccessShaderWrite,
		})
	}
	if len(barriers) > 0 {
		enc.ImageBarrier(barriers...)
		for _, b := range barriers {
			layouts.set(b.Image, metadata.ImageLayoutGeneral)
		}
	}

	enc.BindPipeline(metadata.PipelineKindCompute, c.Pipeline)
	if len(c.Arguments) > 0 {
		h, err := pool.Allocate(c.Arguments)
		if err != nil {
			return err
		}
		enc.BindDescriptorSet(metadata.PipelineKindCompute, c.Pipeline, h.Set)
	}
	enc.Dispatch(c.X, c.Y, c.Z)
	return nil
}
