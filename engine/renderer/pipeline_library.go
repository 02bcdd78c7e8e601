package renderer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// ShaderSource resolves a shader name to its current SPIR-V words.
type ShaderSource interface {
	Code(name string) ([]uint32, error)
}

type pipelineEntry struct {
	state  metadata.PipelineState
	handle metadata.PipelineHandle
}

// PipelineLibrary caches backend pipelines by name and rebuilds the ones
// using a shader when that shader is reloaded.
type PipelineLibrary struct {
	backend RendererBackend
	shaders ShaderSource

	mu      sync.Mutex
	entries map[string]*pipelineEntry
}

func NewPipelineLibrary(backend RendererBackend, shaders ShaderSource) *PipelineLibrary {
	return &PipelineLibrary{
		backend: backend,
		shaders: shaders,
		entries: make(map[string]*pipelineEntry),
	}
}

// Get returns the cached pipeline named state.Name, creating it on first
// use. Stages without code are resolved through the shader source.
func (l *PipelineLibrary) Get(state metadata.PipelineState) (metadata.PipelineHandle, error) {
	if state.Name == "" {
		err := fmt.Errorf("pipeline without a name: %w", core.ErrPipelineCompile)
		core.LogError(err.Error())
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[state.Name]; ok {
		return e.handle, nil
	}

	resolved, err := l.resolve(state)
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	handle, err := l.backend.CreatePipeline(resolved)
	if err != nil {
		err = fmt.Errorf("failed to create pipeline %q: %w", state.Name, err)
		core.LogError(err.Error())
		return 0, err
	}
	l.entries[state.Name] = &pipelineEntry{state: resolved, handle: handle}
	core.LogDebug("pipeline %q created with handle %d", state.Name, handle)
	return handle, nil
}

func (l *PipelineLibrary) resolve(state metadata.PipelineState) (metadata.PipelineState, error) {
	stages := make([]metadata.ShaderStage, len(state.Stages))
	copy(stages, state.Stages)
	for i, s := range stages {
		if len(s.Code) > 0 {
			continue
		}
		if l.shaders == nil {
			return state, fmt.Errorf("pipeline %q stage %s has no code: %w", state.Name, s.Kind, core.ErrPipelineCompile)
		}
		code, err := l.shaders.Code(s.Name)
		if err != nil {
			return state, fmt.Errorf("pipeline %q shader %q: %w", state.Name, s.Name, err)
		}
		stages[i].Code = code
	}
	state.Stages = stages
	return state, nil
}

// Lookup returns the current handle of a cached pipeline. Handles change
// when a pipeline is rebuilt, so passes look them up every frame.
func (l *PipelineLibrary) Lookup(name string) (metadata.PipelineHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		return 0, false
	}
	return e.handle, true
}

func (l *PipelineLibrary) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reload swaps in new code for the shader called shader and rebuilds every
// pipeline using it. A pipeline that fails to build keeps its previous
// handle. It returns the names of the rebuilt pipelines.
func (l *PipelineLibrary) Reload(shader string, code []uint32) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var rebuilt []string
	var firstErr error
	for _, name := range names {
		e := l.entries[name]
		state := e.state
		stages := make([]metadata.ShaderStage, len(state.Stages))
		copy(stages, state.Stages)
		uses := false
		for i := range stages {
			if stages[i].Name == shader {
				stages[i].Code = code
				uses = true
			}
		}
		if !uses {
			continue
		}
		state.Stages = stages
		handle, err := l.backend.CreatePipeline(state)
		if err != nil {
			err = fmt.Errorf("failed to rebuild pipeline %q after %q changed: %w", name, shader, err)
			core.LogError(err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		l.backend.DestroyPipeline(e.handle)
		l.entries[name] = &pipelineEntry{state: state, handle: handle}
		rebuilt = append(rebuilt, name)
		core.LogInfo("pipeline %q rebuilt (%d -> %d)", name, e.handle, handle)
	}
	return rebuilt, firstErr
}

// Listen rebuilds pipelines whenever a shader reload event fires.
func (l *PipelineLibrary) Listen() bool {
	return core.EventRegister(core.EVENT_CODE_SHADER_RELOADED, l, l.onShaderReloaded)
}

func (l *PipelineLibrary) onShaderReloaded(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	name := data.Data.C[0]
	if l.shaders == nil {
		return false
	}
	words, err := l.shaders.Code(name)
	if err != nil {
		core.LogWarn("shader %q reloaded but could not be read: %s", name, err)
		return false
	}
	if _, err := l.Reload(name, words); err != nil {
		core.LogWarn("shader %q reload left some pipelines on the old code", name)
	}
	return false
}

// Destroy releases every cached pipeline and stops listening for reloads.
func (l *PipelineLibrary) Destroy() {
	core.EventUnregister(core.EVENT_CODE_SHADER_RELOADED, l)
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, e := range l.entries {
		l.backend.DestroyPipeline(e.handle)
		delete(l.entries, name)
	}
}
