package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDanglingResource is returned when a pass references a resource that has no registry entry.
	ErrDanglingResource = errors.New("dangling resource reference")
	// ErrStaleResource is returned when a write targets a version that is no longer the latest.
	ErrStaleResource = errors.New("stale resource version")
	// ErrForeignResource is returned when a handle was issued by another frame graph.
	ErrForeignResource = errors.New("resource handle belongs to another frame graph")
	// ErrNoBackbuffer is returned when no pass is free of downstream consumers.
	ErrNoBackbuffer = errors.New("frame graph has no backbuffer pass")
	// ErrMultipleBackbuffers is returned when more than one pass has no downstream consumer.
	ErrMultipleBackbuffers = errors.New("frame graph has multiple backbuffer passes")
	// ErrGraphCompiled is returned by recording operations on an already compiled graph.
	ErrGraphCompiled = errors.New("frame graph already compiled")
	// ErrGraphNotCompiled is returned when executing a graph that was never compiled.
	ErrGraphNotCompiled = errors.New("frame graph not compiled")
	// ErrShapeMismatch is returned when descriptor bindings do not fit their declared types.
	ErrShapeMismatch = errors.New("descriptor shape mismatch")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrOutOfPoolMemory   = errors.New("out of descriptor pool memory")
	ErrPipelineCompile   = errors.New("pipeline compilation failed")
	// ErrSwapchainOutOfDate asks the caller to recreate the swapchain.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	// ErrSwapchainSuboptimal is informational; presentation still succeeded.
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
	ErrMapFailed           = errors.New("memory map failed")
	ErrShaderRead          = errors.New("shader read failed")
	ErrDeviceLost          = errors.New("device lost")
	// ErrRecorderSubmitted is the panic value for commands recorded after Submit.
	ErrRecorderSubmitted = errors.New("command recorder already submitted")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrUnknown           = errors.New("unknown")
)

// ConfigurationError pins a configuration failure to the pass and resource
// that caused it.
type ConfigurationError struct {
	Pass     string
	Resource uint32
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Pass == "" {
		return fmt.Sprintf("resource %d: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("pass %q, resource %d: %v", e.Pass, e.Resource, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
