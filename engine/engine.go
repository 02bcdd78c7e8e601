package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

type Engine struct {
	currentStage Stage
	cfg          core.Config
	gameInstance *Game

	shaders  *assets.ShaderLibrary
	jobs     *systems.JobSystem
	renderer *renderer.Renderer
	backend  renderer.RendererBackend

	clock    *core.Clock
	lastTime float64
}

func New(cfg core.Config, g *Game) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if g == nil || g.FnUpdate == nil || g.FnRender == nil {
		return nil, fmt.Errorf("game must provide update and render functions")
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		cfg:          cfg,
		gameInstance: g,
		clock:        core.NewClock(),
	}, nil
}

// WithBackend makes Initialize use backend instead of creating the one
// named in the configuration.
func (e *Engine) WithBackend(backend renderer.RendererBackend) *Engine {
	e.backend = backend
	return e
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	level, err := core.ParseLogLevel(e.cfg.Log.Level)
	if err != nil {
		return err
	}
	core.SetLogLevel(level)

	// initialize events
	if !core.EventInitialize() {
		core.LogWarn("event system was already initialized")
	}

	// initialize subsystems
	shaders, err := e.shaderSource()
	if err != nil {
		return err
	}

	if e.backend == nil {
		e.renderer, err = renderer.New(e.cfg, shaders)
	} else {
		e.renderer, err = renderer.NewWithBackend(e.cfg, e.backend, shaders)
	}
	if err != nil {
		return err
	}

	e.jobs, err = systems.NewJobSystemFromConfig(e.cfg.Jobs)
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	e.gameInstance.Renderer = e.renderer
	e.gameInstance.Jobs = e.jobs
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.cfg.Renderer.Width, e.cfg.Renderer.Height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized: %s on the %s backend", e.cfg.App.Name, e.renderer.Backend().Name())
	return nil
}

func (e *Engine) shaderSource() (renderer.ShaderSource, error) {
	library := assets.NewShaderLibrary(e.cfg.Assets.ShaderDir)
	err := library.Initialize(e.cfg.Assets.Watch)
	if err == nil {
		e.shaders = library
		return library, nil
	}
	if e.cfg.Renderer.Backend == core.BackendNull && e.gameInstance.FallbackShaders != nil {
		core.LogWarn("no shaders under %s, using the game's fallback shaders", e.cfg.Assets.ShaderDir)
		return e.gameInstance.FallbackShaders, nil
	}
	return nil, err
}

// Run drives update and render until the configured frame count is reached
// or ctx is cancelled. A frame count of 0 runs until cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine not initialized")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.lastTime = 0

	frames := e.cfg.Renderer.Frames
	for i := 0; frames == 0 || i < frames; i++ {
		if ctx.Err() != nil {
			core.LogInfo("run cancelled after %d frames", i)
			break
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.ElapsedSeconds()
		delta := currentTime - e.lastTime

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			return err
		}

		// Call the game's render routine.
		if err := e.gameInstance.FnRender(ctx, delta); err != nil {
			if ctx.Err() != nil {
				break
			}
			core.LogError("game render failed, shutting down: %s", err)
			return err
		}

		// Update last time
		e.lastTime = currentTime
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("rendered %d frames, %.0f fps average", e.renderer.Frames(), e.renderer.Metrics().FPS())
	return nil
}

// OnResize forwards a new surface size to the renderer and the game.
// A zero size is a minimized window and is ignored.
func (e *Engine) OnResize(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, skipping resize")
		return nil
	}
	core.LogDebug("window resize: %d, %d", width, height)
	if err := e.renderer.OnResize(width, height); err != nil {
		return err
	}
	if e.gameInstance.FnOnResize != nil {
		return e.gameInstance.FnOnResize(width, height)
	}
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.renderer != nil {
		if err := e.renderer.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.shaders != nil {
		if err := e.shaders.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := core.EventShutdown(); err != nil {
		errs = append(errs, err)
	}

	e.currentStage = EngineStageShutdown
	if len(errs) > 0 {
		err := fmt.Errorf("engine shutdown: %w", errors.Join(errs...))
		core.LogError(err.Error())
		return err
	}
	return nil
}
