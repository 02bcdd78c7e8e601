package submission

import (
	"context"
	"fmt"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDevice logs every native call in order.
type recordingDevice struct {
	ops      []string
	barriers [][]ImageBarrier
	layouts  map[metadata.ImageHandle]metadata.ImageLayout

	buffers   int
	fences    metadata.FenceHandle
	destroyed []metadata.FenceHandle
	waits     int
	failWait  int
	failSubmit error

	sets metadata.DescriptorSetHandle
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{layouts: make(map[metadata.ImageHandle]metadata.ImageLayout)}
}

func (d *recordingDevice) CreateCommandPool(worker cmdpool.WorkerID) (int, error) {
	return int(worker), nil
}

func (d *recordingDevice) AllocateCommandBuffer(pool int) (int, error) {
	d.buffers++
	return d.buffers, nil
}

func (d *recordingDevice) ResetCommandBuffer(pool int, buffer int) error { return nil }
func (d *recordingDevice) DestroyCommandPool(pool int)                  {}

func (d *recordingDevice) Encoder(buffer int) Encoder {
	return &recordingEncoder{d: d}
}

func (d *recordingDevice) CreateFence() (metadata.FenceHandle, error) {
	d.fences++
	return d.fences, nil
}

func (d *recordingDevice) QueueSubmit(queue metadata.QueueKind, buffer int, fence metadata.FenceHandle) error {
	if d.failSubmit != nil {
		return d.failSubmit
	}
	d.ops = append(d.ops, fmt.Sprintf("submit %s", queue))
	return nil
}

func (d *recordingDevice) WaitForFence(fence metadata.FenceHandle) error {
	d.waits++
	if d.waits == d.failWait {
		return core.ErrDeviceLost
	}
	d.ops = append(d.ops, "wait")
	return nil
}

func (d *recordingDevice) DestroyFence(fence metadata.FenceHandle) {
	d.destroyed = append(d.destroyed, fence)
}

func (d *recordingDevice) ImageLayout(image metadata.ImageHandle) metadata.ImageLayout {
	return d.layouts[image]
}

func (d *recordingDevice) SetImageLayout(image metadata.ImageHandle, layout metadata.ImageLayout) {
	d.layouts[image] = layout
}

func (d *recordingDevice) CreateDescriptorPool(maxSets uint32, shape descriptor.Shape, sizes descriptor.Sizes) (metadata.DescriptorPoolHandle, error) {
	return 1, nil
}

func (d *recordingDevice) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error) {
	d.sets++
	return d.sets, nil
}

func (d *recordingDevice) WriteDescriptorSet(set metadata.DescriptorSetHandle, bindings []metadata.Binding) error {
	return nil
}

func (d *recordingDevice) ResetDescriptorPool(pool metadata.DescriptorPoolHandle) error { return nil }
func (d *recordingDevice) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle)      {}

type recordingEncoder struct {
	d *recordingDevice
}

func (e *recordingEncoder) log(format string, args ...interface{}) {
	e.d.ops = append(e.d.ops, fmt.Sprintf(format, args...))
}

func (e *recordingEncoder) Begin(oneShot bool) error {
	e.log("begin")
	return nil
}

func (e *recordingEncoder) End() error {
	e.log("end")
	return nil
}

func (e *recordingEncoder) ImageBarrier(barriers ...ImageBarrier) {
	e.log("image_barrier")
	e.d.barriers = append(e.d.barriers, barriers)
}

func (e *recordingEncoder) BufferBarrier(barriers ...BufferBarrier) {
	e.log("buffer_barrier x%d", len(barriers))
}

func (e *recordingEncoder) CopyImage(src, dst metadata.ImageHandle, srcLayout, dstLayout metadata.ImageLayout) {
	e.log("copy_image %d(%s) -> %d(%s)", src, srcLayout, dst, dstLayout)
}

func (e *recordingEncoder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) {
	e.log("copy_buffer %d -> %d %d", src, dst, size)
}

func (e *recordingEncoder) BeginRenderPass(renderPass metadata.RenderPassHandle, framebuffer metadata.FramebufferHandle) {
	e.log("begin_render_pass %d %d", renderPass, framebuffer)
}

func (e *recordingEncoder) EndRenderPass() {
	e.log("end_render_pass")
}

func (e *recordingEncoder) BindPipeline(kind metadata.PipelineKind, pipeline metadata.PipelineHandle) {
	e.log("bind_pipeline %d", pipeline)
}

func (e *recordingEncoder) BindDescriptorSet(kind metadata.PipelineKind, pipeline metadata.PipelineHandle, set metadata.DescriptorSetHandle) {
	e.log("bind_set %d", set)
}

func (e *recordingEncoder) BindVertexBuffer(buffer metadata.BufferHandle) {
	e.log("bind_vertex %d", buffer)
}

func (e *recordingEncoder) BindIndexBuffer(buffer metadata.BufferHandle) {
	e.log("bind_index %d", buffer)
}

func (e *recordingEncoder) DrawIndexed(first, count uint32) {
	e.log("draw %d %d", first, count)
}

func (e *recordingEncoder) Dispatch(x, y, z uint32) {
	e.log("dispatch %dx%dx%d", x, y, z)
}

func newTestEngine() (*Engine[int, int], *recordingDevice, *cmdpool.Pool[int, int], *descriptor.Pool) {
	d := newRecordingDevice()
	pools := cmdpool.New[int, int](d, 8)
	return NewEngine[int, int](d, pools), d, pools, descriptor.NewPool(d, 0)
}

func TestCopyImageBarrierSequence(t *testing.T) {
	engine, d, _, pool := newTestEngine()
	d.layouts[1] = metadata.ImageLayoutColorAttachment

	list := command.NewList()
	list.RecordTransfer().CopyImage(1, 2).Submit()
	require.NoError(t, engine.Submit(context.Background(), cmdpool.MainWorker, pool, list))

	assert.Equal(t, []string{
		"begin",
		"image_barrier",
		"copy_image 1(TRANSFER_SRC) -> 2(TRANSFER_DST)",
		"image_barrier",
		"end",
		"submit transfer",
		"wait",
	}, d.ops)

	require.Len(t, d.barriers, 2)
	assert.Equal(t, []ImageBarrier{
		{
			Image:     1,
			OldLayout: metadata.ImageLayoutColorAttachment,
			NewLayout: metadata.ImageLayoutTransferSrc,
			SrcAccess: metadata.AccessColorAttachment,
			DstAccess: metadata.AccessTransferRead,
		},
		{
			Image:     2,
			OldLayout: metadata.ImageLayoutUndefined,
			NewLayout: metadata.ImageLayoutTransferDst,
			SrcAccess: metadata.AccessNone,
			DstAccess: metadata.AccessTransferWrite,
		},
	}, d.barriers[0])
	assert.Equal(t, []ImageBarrier{
		{
			Image:     1,
			OldLayout: metadata.ImageLayoutTransferSrc,
			NewLayout: metadata.ImageLayoutColorAttachment,
			SrcAccess: metadata.AccessTransferRead,
			DstAccess: metadata.AccessColorAttachment,
		},
		{
			Image:     2,
			OldLayout: metadata.ImageLayoutTransferDst,
			NewLayout: metadata.ImageLayoutGeneral,
			SrcAccess: metadata.AccessTransferWrite,
			DstAccess: metadata.AccessMemoryRead,
		},
	}, d.barriers[1])

	assert.Equal(t, metadata.ImageLayoutColorAttachment, d.layouts[1])
	assert.Equal(t, metadata.ImageLayoutGeneral, d.layouts[2])
}

func TestCopyBufferIsFenced(t *testing.T) {
	engine, d, _, pool := newTestEngine()

	list := command.NewList()
	list.RecordTransfer().CopyBuffer(3, 4, 128).Submit()
	require.NoError(t, engine.Submit(context.Background(), cmdpool.MainWorker, pool, list))

	assert.Equal(t, []string{
		"begin",
		"buffer_barrier x2",
		"copy_buffer 3 -> 4 128",
		"buffer_barrier x1",
		"end",
		"submit transfer",
		"wait",
	}, d.ops)
}

func TestDrawRecordsRenderPass(t *testing.T) {
	engine, d, _, pool := newTestEngine()

	list := command.NewList()
	list.RecordGraphics().DrawIndexed(command.Draw{
		Pipeline:    2,
		RenderPass:  5,
		Framebuffer: 6,
		Vertex:      7,
		Index:       8,
		Arguments:   metadata.ShaderArguments{metadata.UniformBinding(0, 9)},
		Range:       command.IndexRange{First: 0, Count: 36},
	}).Submit()
	require.NoError(t, engine.Submit(context.Background(), cmdpool.MainWorker, pool, list))

	assert.Equal(t, []string{
		"begin",
		"begin_render_pass 5 6",
		"bind_pipeline 2",
		"bind_set 1",
		"bind_vertex 7",
		"bind_index 8",
		"draw 0 36",
		"end_render_pass",
		"end",
		"submit graphics",
		"wait",
	}, d.ops)
	assert.Equal(t, uint32(1), pool.Stats().Allocations)
}

func TestDispatchTransitionsStorageImagesOnce(t *testing.T) {
	engine, d, _, pool := newTestEngine()

	dispatch := command.Dispatch{
		Pipeline: 3,
		Arguments: metadata.ShaderArguments{
			metadata.UniformBinding(0, 1),
			metadata.StorageImageBinding(1, 4, metadata.ShaderAccessWrite),
		},
		X: 16, Y: 16, Z: 1,
	}
	list := command.NewList()
	list.RecordCompute().Dispatch(dispatch).Dispatch(dispatch).Submit()
	require.NoError(t, engine.Submit(context.Background(), cmdpool.MainWorker, pool, list))

	require.Len(t, d.barriers, 1)
	assert.Equal(t, metadata.ImageLayoutUndefined, d.barriers[0][0].OldLayout)
	assert.Equal(t, metadata.ImageLayoutGeneral, d.barriers[0][0].NewLayout)
	assert.Equal(t, metadata.ImageLayoutGeneral, d.layouts[4])
	assert.Equal(t, []string{
		"begin",
		"image_barrier",
		"bind_pipeline 3",
		"bind_set 1",
		"dispatch 16x16x1",
		"bind_pipeline 3",
		"bind_set 2",
		"dispatch 16x16x1",
		"end",
		"submit compute",
		"wait",
	}, d.ops)
}

func TestSubmitRecyclesCommandBuffers(t *testing.T) {
	engine, d, pools, pool := newTestEngine()

	list := command.NewList()
	list.RecordTransfer().CopyBuffer(1, 2, 16).Submit()
	list.RecordTransfer().CopyBuffer(2, 3, 16).Submit()
	list.RecordTransfer().CopyBuffer(3, 4, 16).Submit()

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.Submit(context.Background(), 1, pool, list))
	}

	wp, err := pools.Worker(1)
	require.NoError(t, err)
	assert.Equal(t, 3, wp.Allocated())
	assert.Equal(t, 3, wp.Free())
	assert.Equal(t, 9, d.waits)
	assert.Len(t, d.destroyed, 9)
}

func TestFailedWaitLeaksOnlyTheInFlightBuffer(t *testing.T) {
	engine, d, pools, pool := newTestEngine()
	d.failWait = 2

	list := command.NewList()
	list.RecordTransfer().CopyBuffer(1, 2, 16).Submit()
	list.RecordTransfer().CopyBuffer(2, 3, 16).Submit()
	list.RecordTransfer().CopyBuffer(3, 4, 16).Submit()

	err := engine.Submit(context.Background(), cmdpool.MainWorker, pool, list)
	require.ErrorIs(t, err, core.ErrDeviceLost)

	wp, err := pools.Worker(cmdpool.MainWorker)
	require.NoError(t, err)
	assert.Equal(t, 2, wp.Allocated())
	assert.Equal(t, 1, wp.Free())
	// the fence of the stuck submit is still pending
	assert.Equal(t, []metadata.FenceHandle{1}, d.destroyed)
}

func TestFailedSubmitKeepsImageLayouts(t *testing.T) {
	engine, d, _, pool := newTestEngine()
	d.layouts[1] = metadata.ImageLayoutColorAttachment
	d.failSubmit = core.ErrDeviceLost

	list := command.NewList()
	list.RecordTransfer().CopyImage(1, 2).Submit()

	err := engine.Submit(context.Background(), cmdpool.MainWorker, pool, list)
	require.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, metadata.ImageLayoutColorAttachment, d.layouts[1])
	_, touched := d.layouts[2]
	assert.False(t, touched)
}

func TestLayoutsCarryAcrossCommandsOfOneSubmit(t *testing.T) {
	engine, d, _, pool := newTestEngine()

	list := command.NewList()
	list.RecordTransfer().CopyImage(1, 2).CopyImage(2, 3).Submit()

	require.NoError(t, engine.Submit(context.Background(), cmdpool.MainWorker, pool, list))
	require.Len(t, d.barriers, 4)
	// the second copy reads image 2 from where the first copy left it
	assert.Equal(t, metadata.ImageHandle(2), d.barriers[2][0].Image)
	assert.Equal(t, metadata.ImageLayoutGeneral, d.barriers[2][0].OldLayout)
	assert.Equal(t, metadata.ImageLayoutGeneral, d.layouts[2])
	assert.Equal(t, metadata.ImageLayoutGeneral, d.layouts[3])
}

func TestSubmitHonoursCancellation(t *testing.T) {
	engine, d, _, pool := newTestEngine()
	list := command.NewList()
	list.RecordTransfer().CopyBuffer(1, 2, 16).Submit()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := engine.Submit(ctx, cmdpool.MainWorker, pool, list)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.ops)
}
