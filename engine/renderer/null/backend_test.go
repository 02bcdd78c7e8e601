package null

import (
	"context"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallColor = metadata.ImageDesc{
	Resolution: metadata.Resolution{Width: 4, Height: 4},
	Format:     metadata.FormatR8G8B8A8Unorm,
}

func newInitialized(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b := New(opts...)
	require.NoError(t, b.Initialize("test", 4, 4))
	t.Cleanup(func() { _ = b.Shutdown() })
	return b
}

func TestDescriptorPoolsGrowInBlocks(t *testing.T) {
	b := newInitialized(t)
	uniforms, err := b.AllocateBuffer(metadata.BufferDesc{Size: 64, Usage: metadata.BufferUsageUniform})
	require.NoError(t, err)
	swap, err := b.AllocateImage(smallColor)
	require.NoError(t, err)

	fg := framegraph.New(framegraph.Context{Backend: b})
	target, err := fg.ImportImage("target", swap, smallColor)
	require.NoError(t, err)
	_, err = framegraph.AddPass(fg, "dispatches", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		out := framegraph.Write(tb, target)
		return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			rec := list.RecordCompute()
			for i := 0; i < 51; i++ {
				rec.Dispatch(command.Dispatch{
					Pipeline:  1,
					Arguments: metadata.ShaderArguments{metadata.UniformBinding(0, uniforms)},
					X:         1, Y: 1, Z: 1,
				})
			}
			rec.Submit()
			return nil
		})
	})
	require.NoError(t, err)
	compiled, err := fg.Compile()
	require.NoError(t, err)

	require.NoError(t, compiled.Execute(context.Background(), nil))
	stats := b.Stats()
	assert.Equal(t, 2, stats.DescriptorPoolsCreated)
	assert.Equal(t, 51, stats.DescriptorSetsAllocated)
	assert.Equal(t, 2, stats.DescriptorPoolResets)

	// the second frame reuses both pools
	require.NoError(t, compiled.Execute(context.Background(), nil))
	stats = b.Stats()
	assert.Equal(t, 2, stats.DescriptorPoolsCreated)
	assert.Equal(t, 102, stats.DescriptorSetsAllocated)

	compiled.Destroy()
	assert.Equal(t, 0, b.descriptorPools.Len())
}

func TestCopyThroughGraphMovesData(t *testing.T) {
	b := newInitialized(t)
	src, err := b.AllocateImage(smallColor)
	require.NoError(t, err)
	pixels := make([]byte, smallColor.Size())
	for i := range pixels {
		pixels[i] = byte(i)
	}
	require.NoError(t, b.WriteImage(src, pixels))

	_, backbuffer, err := b.AcquireNextImage(context.Background())
	require.NoError(t, err)

	fg := framegraph.New(framegraph.Context{Backend: b})
	source, err := fg.ImportImage("source", src, smallColor)
	require.NoError(t, err)
	swap, err := fg.ImportImage("swapchain", backbuffer, b.SwapchainDesc())
	require.NoError(t, err)

	staged, err := framegraph.AddPass(fg, "stage", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		in := framegraph.Read(tb, source)
		out := tb.CreateImage("staging", smallColor)
		return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			s, err := reg.Image(in)
			if err != nil {
				return err
			}
			d, err := reg.Image(out)
			if err != nil {
				return err
			}
			list.RecordTransfer().CopyImage(s, d).Submit()
			return nil
		})
	})
	require.NoError(t, err)
	_, err = framegraph.AddPass(fg, "present", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		in := framegraph.Read(tb, staged)
		out := framegraph.Write(tb, swap)
		return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			s, err := reg.Image(in)
			if err != nil {
				return err
			}
			d, err := reg.Image(out)
			if err != nil {
				return err
			}
			list.RecordGraphics().CopyImage(s, d).Submit()
			return nil
		})
	})
	require.NoError(t, err)

	compiled, err := fg.Compile()
	require.NoError(t, err)
	require.NoError(t, compiled.Execute(context.Background(), nil))

	got, err := b.ReadImage(backbuffer)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)

	assert.Equal(t, 2, b.Stats().Submits)
	assert.Contains(t, b.Executed(), "graphics: copy image 5 -> 1")
	assert.Equal(t, metadata.ImageLayoutGeneral, b.ImageLayout(backbuffer))
	assert.Equal(t, 0, b.Stats().Fences)
}

func TestFailedSubmitKeepsDescriptorSets(t *testing.T) {
	b := newInitialized(t)
	uniforms, err := b.AllocateBuffer(metadata.BufferDesc{Size: 16})
	require.NoError(t, err)

	fg := framegraph.New(framegraph.Context{Backend: b})
	_, err = framegraph.AddPass(fg, "compute", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		out := tb.CreateImage("out", smallColor)
		return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			list.RecordCompute().Dispatch(command.Dispatch{
				Pipeline:  1,
				Arguments: metadata.ShaderArguments{metadata.UniformBinding(0, uniforms)},
				X:         1, Y: 1, Z: 1,
			}).Submit()
			return nil
		})
	})
	require.NoError(t, err)
	compiled, err := fg.Compile()
	require.NoError(t, err)

	b.FailNext(OpQueueSubmit, core.ErrDeviceLost)
	err = compiled.Execute(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, uint32(1), compiled.Pool().Stats().Allocations)
	assert.Equal(t, 0, b.Stats().DescriptorPoolResets)

	require.NoError(t, compiled.Execute(context.Background(), nil))
	assert.Equal(t, uint32(0), compiled.Pool().Stats().Allocations)
}

func TestFailedSubmitLeavesLayoutsUntouched(t *testing.T) {
	b := newInitialized(t)
	src, err := b.AllocateImage(smallColor)
	require.NoError(t, err)
	dst, err := b.AllocateImage(smallColor)
	require.NoError(t, err)

	list := command.NewList()
	list.RecordTransfer().CopyImage(src, dst).Submit()

	b.FailNext(OpQueueSubmit, core.ErrDeviceLost)
	err = b.SubmitCommands(context.Background(), 0, nil, list)
	require.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, metadata.ImageLayoutUndefined, b.ImageLayout(src))
	assert.Equal(t, metadata.ImageLayoutUndefined, b.ImageLayout(dst))

	require.NoError(t, b.SubmitCommands(context.Background(), 0, nil, list))
	assert.Equal(t, metadata.ImageLayoutGeneral, b.ImageLayout(src))
	assert.Equal(t, metadata.ImageLayoutGeneral, b.ImageLayout(dst))
}

func TestCommandBuffersAreRecycledPerWorker(t *testing.T) {
	b := newInitialized(t)
	a, err := b.AllocateBuffer(metadata.BufferDesc{Size: 8})
	require.NoError(t, err)
	c, err := b.AllocateBuffer(metadata.BufferDesc{Size: 8})
	require.NoError(t, err)
	require.NoError(t, b.WriteBuffer(a, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	list := command.NewList()
	list.RecordTransfer().CopyBuffer(a, c, 4).Submit()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.SubmitCommands(context.Background(), 2, nil, list))
	}

	got, err := b.ReadBuffer(c, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, got)

	stats := b.Stats()
	assert.Equal(t, 1, stats.CommandPools)
	assert.Equal(t, 1, stats.CommandBuffers)
	assert.Equal(t, 5, stats.Submits)
}

func TestBufferBounds(t *testing.T) {
	b := New()
	h, err := b.AllocateBuffer(metadata.BufferDesc{Size: 4, HostVisible: true})
	require.NoError(t, err)

	assert.ErrorIs(t, b.WriteBuffer(h, 2, []byte{1, 2, 3}), core.ErrMapFailed)
	_, err = b.ReadBuffer(h, 0, 5)
	assert.ErrorIs(t, err, core.ErrMapFailed)
	_, err = b.ReadBuffer(99, 0, 1)
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	_, err = b.AllocateBuffer(metadata.BufferDesc{})
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
}

func TestPipelineValidation(t *testing.T) {
	b := New()
	pass, err := b.CreateRenderPass(metadata.RenderPassDesc{ColorFormats: []metadata.Format{metadata.FormatR8G8B8A8Unorm}})
	require.NoError(t, err)
	code := []uint32{0x07230203}

	_, err = b.CreatePipeline(metadata.PipelineState{Name: "empty", Kind: metadata.PipelineKindCompute})
	assert.ErrorIs(t, err, core.ErrPipelineCompile)

	_, err = b.CreatePipeline(metadata.PipelineState{
		Name:   "mixed",
		Kind:   metadata.PipelineKindCompute,
		Stages: []metadata.ShaderStage{{Kind: metadata.ShaderStageVertex, Code: code}},
	})
	assert.ErrorIs(t, err, core.ErrPipelineCompile)

	_, err = b.CreatePipeline(metadata.PipelineState{
		Name:   "no-pass",
		Kind:   metadata.PipelineKindGraphics,
		Stages: []metadata.ShaderStage{{Kind: metadata.ShaderStageVertex, Code: code}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	p, err := b.CreatePipeline(metadata.PipelineState{
		Name:       "triangle",
		Kind:       metadata.PipelineKindGraphics,
		RenderPass: pass,
		Stages: []metadata.ShaderStage{
			{Kind: metadata.ShaderStageVertex, Code: code},
			{Kind: metadata.ShaderStageFragment, Code: code},
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, p)
	assert.Equal(t, 1, b.Stats().Pipelines)
	b.DestroyPipeline(p)
	assert.Equal(t, 0, b.Stats().Pipelines)
}

func TestFramebufferValidation(t *testing.T) {
	b := New()
	pass, err := b.CreateRenderPass(metadata.RenderPassDesc{
		ColorFormats: []metadata.Format{metadata.FormatR8G8B8A8Unorm},
		DepthFormat:  metadata.FormatD32Sfloat,
	})
	require.NoError(t, err)
	color, err := b.AllocateImage(smallColor)
	require.NoError(t, err)

	_, err = b.CreateFramebuffer(pass, []metadata.ImageHandle{color})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
	_, err = b.CreateFramebuffer(42, []metadata.ImageHandle{color})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	depth, err := b.AllocateImage(metadata.ImageDesc{
		Resolution: smallColor.Resolution,
		Format:     metadata.FormatD32Sfloat,
		Kind:       metadata.ImageKindDepth,
	})
	require.NoError(t, err)
	fb, err := b.CreateFramebuffer(pass, []metadata.ImageHandle{color, depth})
	require.NoError(t, err)
	assert.NotZero(t, fb)
}

func TestSwapchainRotationAndInvalidation(t *testing.T) {
	require.True(t, core.EventInitialize())
	defer core.EventShutdown()

	var outOfDate int
	listener := &struct{}{}
	core.EventRegister(core.EVENT_CODE_SWAPCHAIN_OUT_OF_DATE, listener,
		func(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
			outOfDate++
			return true
		})

	b := newInitialized(t, WithSwapchainImages(2))
	ctx := context.Background()

	i0, img0, err := b.AcquireNextImage(ctx)
	require.NoError(t, err)
	i1, img1, err := b.AcquireNextImage(ctx)
	require.NoError(t, err)
	i2, img2, err := b.AcquireNextImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 0}, []uint32{i0, i1, i2})
	assert.NotEqual(t, img0, img1)
	assert.Equal(t, img0, img2)

	require.NoError(t, b.Present(i2))
	assert.Equal(t, metadata.ImageLayoutPresentSrc, b.ImageLayout(img2))
	assert.Error(t, b.Present(7))

	b.Invalidate()
	_, _, err = b.AcquireNextImage(ctx)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)
	assert.Equal(t, 1, outOfDate)

	require.NoError(t, b.Resized(8, 8))
	assert.Equal(t, uint32(8), b.SwapchainDesc().Resolution.Width)
	_, _, err = b.AcquireNextImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Stats().Images)
}
