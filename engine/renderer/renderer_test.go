package renderer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryShaders map[string][]uint32

func (m memoryShaders) Code(name string) ([]uint32, error) {
	code, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, core.ErrShaderRead)
	}
	return code, nil
}

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Renderer.Width = 4
	cfg.Renderer.Height = 4
	return cfg
}

func newRenderer(t *testing.T, shaders renderer.ShaderSource) (*renderer.Renderer, *null.Backend) {
	t.Helper()
	b := null.New(null.WithSwapchainImages(2))
	r, err := renderer.NewWithBackend(testConfig(), b, shaders)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })
	return r, b
}

func computeState(name, shader string) metadata.PipelineState {
	return metadata.PipelineState{
		Name:   name,
		Kind:   metadata.PipelineKindCompute,
		Stages: []metadata.ShaderStage{{Kind: metadata.ShaderStageCompute, Name: shader}},
	}
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, renderer.Available(), core.BackendNull)

	cfg := testConfig()
	cfg.Renderer.Backend = "software"
	_, err := renderer.NewBackend(cfg)
	assert.Error(t, err)

	boom := errors.New("no device")
	renderer.Register("software", func(core.Config) (renderer.RendererBackend, error) {
		return nil, boom
	})
	defer renderer.Unregister("software")
	_, err = renderer.NewBackend(cfg)
	assert.ErrorIs(t, err, boom)

	cfg.Renderer.Backend = core.BackendNull
	backend, err := renderer.NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, core.BackendNull, backend.Name())
}

func TestPipelineLibraryCachesByName(t *testing.T) {
	r, b := newRenderer(t, memoryShaders{"blur.comp": {0x07230203, 1}})
	lib := r.Pipelines()

	h1, err := lib.Get(computeState("blur", "blur.comp"))
	require.NoError(t, err)
	h2, err := lib.Get(computeState("blur", "blur.comp"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, b.Stats().Pipelines)

	got, ok := lib.Lookup("blur")
	assert.True(t, ok)
	assert.Equal(t, h1, got)
	_, ok = lib.Lookup("tonemap")
	assert.False(t, ok)

	_, err = lib.Get(computeState("tonemap", "tonemap.comp"))
	assert.ErrorIs(t, err, core.ErrShaderRead)
	_, err = lib.Get(computeState("", "blur.comp"))
	assert.ErrorIs(t, err, core.ErrPipelineCompile)
	assert.Equal(t, 1, lib.Len())
}

func TestPipelineLibraryReload(t *testing.T) {
	shaders := memoryShaders{"blur.comp": {1}, "tonemap.comp": {2}}
	r, b := newRenderer(t, shaders)
	lib := r.Pipelines()

	blur, err := lib.Get(computeState("blur", "blur.comp"))
	require.NoError(t, err)
	tonemap, err := lib.Get(computeState("tonemap", "tonemap.comp"))
	require.NoError(t, err)

	rebuilt, err := lib.Reload("blur.comp", []uint32{3})
	require.NoError(t, err)
	assert.Equal(t, []string{"blur"}, rebuilt)
	newBlur, _ := lib.Lookup("blur")
	assert.NotEqual(t, blur, newBlur)
	same, _ := lib.Lookup("tonemap")
	assert.Equal(t, tonemap, same)
	assert.Equal(t, 2, b.Stats().Pipelines)

	b.FailNext(null.OpCreatePipeline, core.ErrPipelineCompile)
	rebuilt, err = lib.Reload("blur.comp", []uint32{4})
	assert.ErrorIs(t, err, core.ErrPipelineCompile)
	assert.Empty(t, rebuilt)
	kept, _ := lib.Lookup("blur")
	assert.Equal(t, newBlur, kept)

	lib.Destroy()
	assert.Equal(t, 0, b.Stats().Pipelines)
}

func TestShaderReloadEventRebuildsPipelines(t *testing.T) {
	require.True(t, core.EventInitialize())
	defer core.EventShutdown()

	shaders := memoryShaders{"blur.comp": {1}}
	r, _ := newRenderer(t, shaders)
	before, err := r.Pipelines().Get(computeState("blur", "blur.comp"))
	require.NoError(t, err)

	shaders["blur.comp"] = []uint32{1, 2}
	data := core.EventContext{}
	data.Data.C[0] = "blur.comp"
	core.EventFire(core.EVENT_CODE_SHADER_RELOADED, nil, data)

	after, ok := r.Pipelines().Lookup("blur")
	require.True(t, ok)
	assert.NotEqual(t, before, after)
}

func copyInto(src metadata.ImageHandle, desc metadata.ImageDesc, presented *metadata.ImageHandle) renderer.FrameBuilder {
	return func(fg *framegraph.Framegraph, backbuffer framegraph.Resource[framegraph.Image]) error {
		source, err := fg.ImportImage("source", src, desc)
		if err != nil {
			return err
		}
		_, err = framegraph.AddPass(fg, "present", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
			in := framegraph.Read(tb, source)
			out := framegraph.Write(tb, backbuffer)
			return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
				s, err := reg.Image(in)
				if err != nil {
					return err
				}
				d, err := reg.Image(out)
				if err != nil {
					return err
				}
				*presented = d
				list.RecordGraphics().CopyImage(s, d).Submit()
				return nil
			})
		})
		return err
	}
}

func TestDrawFrameCopiesToBackbuffer(t *testing.T) {
	r, b := newRenderer(t, nil)
	desc := b.SwapchainDesc()
	src, err := b.AllocateImage(desc)
	require.NoError(t, err)
	pixels := make([]byte, desc.Size())
	for i := range pixels {
		pixels[i] = byte(255 - i)
	}
	require.NoError(t, b.WriteImage(src, pixels))

	var presented metadata.ImageHandle
	require.NoError(t, r.DrawFrame(context.Background(), copyInto(src, desc, &presented), nil))

	got, err := b.ReadImage(presented)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
	assert.Equal(t, metadata.ImageLayoutPresentSrc, b.ImageLayout(presented))
	assert.Equal(t, uint64(1), r.Frames())
	assert.Equal(t, uint64(1), r.Metrics().Frames())
	assert.Equal(t, 1, b.Stats().Presents)
	// two swapchain images plus the source
	assert.Equal(t, 3, b.Stats().Images)

	var second metadata.ImageHandle
	require.NoError(t, r.DrawFrame(context.Background(), copyInto(src, desc, &second), nil))
	assert.NotEqual(t, presented, second)
}

func TestDrawFrameSkipsOutOfDateSwapchain(t *testing.T) {
	r, b := newRenderer(t, nil)
	desc := b.SwapchainDesc()
	src, err := b.AllocateImage(desc)
	require.NoError(t, err)

	b.Invalidate()
	built := false
	err = r.DrawFrame(context.Background(), func(*framegraph.Framegraph, framegraph.Resource[framegraph.Image]) error {
		built = true
		return nil
	}, nil)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, uint64(0), r.Frames())

	var presented metadata.ImageHandle
	require.NoError(t, r.DrawFrame(context.Background(), copyInto(src, desc, &presented), nil))
	assert.Equal(t, uint64(1), r.Frames())
}

func TestDrawFrameErrors(t *testing.T) {
	r, b := newRenderer(t, nil)
	ctx := context.Background()

	err := r.DrawFrame(ctx, func(*framegraph.Framegraph, framegraph.Resource[framegraph.Image]) error {
		return nil
	}, nil)
	assert.ErrorIs(t, err, core.ErrNoBackbuffer)

	boom := errors.New("boom")
	err = r.DrawFrame(ctx, func(*framegraph.Framegraph, framegraph.Resource[framegraph.Image]) error {
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)

	b.FailNext(null.OpAcquireNextImage, core.ErrDeviceLost)
	err = r.DrawFrame(ctx, func(*framegraph.Framegraph, framegraph.Resource[framegraph.Image]) error {
		return nil
	}, nil)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, uint64(0), r.Frames())
}

func TestOnResize(t *testing.T) {
	r, b := newRenderer(t, nil)

	require.NoError(t, r.OnResize(0, 16))
	assert.Equal(t, uint32(4), b.SwapchainDesc().Resolution.Width)

	require.NoError(t, r.OnResize(16, 8))
	assert.Equal(t, metadata.Resolution{Width: 16, Height: 8}, b.SwapchainDesc().Resolution)
}
