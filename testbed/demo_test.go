package testbed

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, frames int) (*engine.Engine, *Demo, *null.Backend) {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Renderer.Backend = core.BackendNull
	cfg.Renderer.Width = 20
	cfg.Renderer.Height = 12
	cfg.Renderer.Frames = frames
	cfg.Assets.ShaderDir = filepath.Join(t.TempDir(), "missing")

	demo := NewDemo()
	backend := null.New(null.WithSwapchainImages(2))
	e, err := engine.New(cfg, demo.Game)
	require.NoError(t, err)
	require.NoError(t, e.WithBackend(backend).Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, demo, backend
}

func TestDemoRendersFrames(t *testing.T) {
	e, demo, backend := newEngine(t, 3)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, uint64(3), e.Renderer().Frames())
	assert.Equal(t, uint32(20), demo.state().width)
	stats := backend.Stats()
	assert.Equal(t, 3, stats.Presents)
	assert.Equal(t, 2, stats.Pipelines)
	// only the swapchain images outlive a frame
	assert.Equal(t, 2, stats.Images)
	assert.Equal(t, 0, stats.Buffers)

	var dispatches, copies int
	for _, op := range backend.Executed() {
		switch {
		case strings.HasPrefix(op, "compute: dispatch 3x2x1"):
			dispatches++
		case strings.HasPrefix(op, "transfer: copy image"):
			copies++
		}
	}
	assert.Equal(t, 6, dispatches)
	assert.Equal(t, 3, copies)
}

func TestDemoSkipsFrameWhenSwapchainIsStale(t *testing.T) {
	e, demo, backend := newEngine(t, 1)
	require.NoError(t, demo.Update(0))

	backend.Invalidate()
	require.NoError(t, demo.Render(context.Background(), 0))
	assert.Equal(t, uint64(0), e.Renderer().Frames())

	require.NoError(t, demo.Render(context.Background(), 0))
	assert.Equal(t, uint64(1), e.Renderer().Frames())
}

func TestRunStopsWhenCancelled(t *testing.T) {
	e, _, backend := newEngine(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 0, backend.Stats().Presents)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, engine.EngineStageShutdown, e.Stage())
}

func TestFrameUniformsLayout(t *testing.T) {
	b := FrameUniforms{Width: 20, Height: 12, Radius: 3, Time: 1.5}.bytes()
	require.Len(t, b, 16)
	assert.Equal(t, uint32(20), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(0x3fc00000), binary.LittleEndian.Uint32(b[12:]))
}
