package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/framegraph"
)

// FrameBuilder records the passes of one frame. backbuffer is the acquired
// swapchain image, imported at version 0; exactly one pass must end up
// writing the final version of it or of something derived from it.
type FrameBuilder func(fg *framegraph.Framegraph, backbuffer framegraph.Resource[framegraph.Image]) error

type Renderer struct {
	cfg       core.Config
	backend   RendererBackend
	pipelines *PipelineLibrary
	metrics   *core.FrameMetrics

	width  uint32
	height uint32
	frames uint64

	reportClock  *core.Clock
	reportPeriod time.Duration
}

// New creates and initializes the backend named in the configuration.
func New(cfg core.Config, shaders ShaderSource) (*Renderer, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(cfg, backend, shaders)
}

// NewWithBackend initializes backend and wraps it.
func NewWithBackend(cfg core.Config, backend RendererBackend, shaders ShaderSource) (*Renderer, error) {
	if err := backend.Initialize(cfg.App.Name, cfg.Renderer.Width, cfg.Renderer.Height); err != nil {
		err = fmt.Errorf("failed to initialize %s backend: %w", backend.Name(), err)
		core.LogError(err.Error())
		return nil, err
	}
	r := &Renderer{
		cfg:          cfg,
		backend:      backend,
		pipelines:    NewPipelineLibrary(backend, shaders),
		metrics:      core.NewFrameMetrics(),
		width:        cfg.Renderer.Width,
		height:       cfg.Renderer.Height,
		reportClock:  core.NewClock(),
		reportPeriod: time.Second,
	}
	if shaders != nil && !r.pipelines.Listen() {
		core.LogWarn("event system not initialized, shader reloads will not rebuild pipelines")
	}
	r.reportClock.Start()
	core.LogInfo("renderer initialized with the %s backend (%dx%d)", backend.Name(), r.width, r.height)
	return r, nil
}

func (r *Renderer) Backend() RendererBackend {
	return r.backend
}

func (r *Renderer) Pipelines() *PipelineLibrary {
	return r.pipelines
}

func (r *Renderer) Metrics() *core.FrameMetrics {
	return r.metrics
}

// Frames is the number of frames presented.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// NewGraph returns an empty frame graph bound to the backend that records
// its commands on worker.
func (r *Renderer) NewGraph(worker cmdpool.WorkerID, opts ...framegraph.Option) *framegraph.Framegraph {
	opts = append([]framegraph.Option{framegraph.WithBlockSize(r.cfg.Descriptor.BlockSize)}, opts...)
	return framegraph.New(framegraph.Context{
		Backend: r.backend,
		Worker:  worker,
		Metrics: r.metrics,
	}, opts...)
}

// DrawFrame acquires a swapchain image, builds a graph around it with
// build, executes it and presents the image. An out of date swapchain is
// recreated and the frame skipped without error.
func (r *Renderer) DrawFrame(ctx context.Context, build FrameBuilder, bb *framegraph.Blackboard) error {
	index, image, err := r.backend.AcquireNextImage(ctx)
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogInfo("swapchain out of date on acquire, skipping frame %d", r.frames)
		return r.recreateSwapchain()
	}
	if err != nil {
		err = fmt.Errorf("failed to acquire swapchain image: %w", err)
		core.LogError(err.Error())
		return err
	}

	fg := r.NewGraph(cmdpool.MainWorker, framegraph.WithName(fmt.Sprintf("frame-%d", r.frames)))
	backbuffer, err := fg.ImportImage("backbuffer", image, r.backend.SwapchainDesc())
	if err != nil {
		return err
	}
	if err := build(fg, backbuffer); err != nil {
		err = fmt.Errorf("failed to build frame %d: %w", r.frames, err)
		core.LogError(err.Error())
		return err
	}
	compiled, err := fg.Compile()
	if err != nil {
		return err
	}
	defer compiled.Destroy()

	if err := compiled.Execute(ctx, bb); err != nil {
		return err
	}

	err = r.backend.Present(index)
	switch {
	case errors.Is(err, core.ErrSwapchainOutOfDate), errors.Is(err, core.ErrSwapchainSuboptimal):
		core.LogInfo("swapchain needs recreation after present: %s", err)
		if err := r.recreateSwapchain(); err != nil {
			return err
		}
	case err != nil:
		err = fmt.Errorf("failed to present image %d: %w", index, err)
		core.LogError(err.Error())
		return err
	}

	r.frames++
	r.report()
	return nil
}

func (r *Renderer) report() {
	r.reportClock.Update()
	if r.reportClock.Elapsed() < r.reportPeriod {
		return
	}
	core.LogInfo("frame %d: %.0f fps, %.3f ms", r.frames, r.metrics.FPS(), r.metrics.FrameTime())
	r.reportClock.Start()
}

// OnResize recreates the swapchain at the new size. A zero extent, as a
// minimized window reports, is ignored.
func (r *Renderer) OnResize(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogDebug("resize to %dx%d ignored", width, height)
		return nil
	}
	r.width = width
	r.height = height
	return r.recreateSwapchain()
}

func (r *Renderer) recreateSwapchain() error {
	if err := r.backend.WaitIdle(); err != nil {
		return err
	}
	if err := r.backend.Resized(r.width, r.height); err != nil {
		err = fmt.Errorf("failed to recreate swapchain at %dx%d: %w", r.width, r.height, err)
		core.LogError(err.Error())
		return err
	}
	core.LogDebug("swapchain recreated at %dx%d", r.width, r.height)
	return nil
}

func (r *Renderer) Shutdown() error {
	if err := r.backend.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown: %s", err)
	}
	r.pipelines.Destroy()
	core.LogInfo("renderer shut down after %d frames", r.frames)
	return r.backend.Shutdown()
}
