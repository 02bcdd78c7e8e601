/*
Demo frame graph used by the entry point: a compute pass fills an image
with a gradient, a second compute pass blurs it and the result is copied
into the swapchain image.
*/
package testbed

import (
	"context"
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/math"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/framegraph"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/systems"
)

const (
	GradientPipeline = "gradient"
	BlurPipeline     = "blur"

	GradientShader = "gradient.comp"
	BlurShader     = "blur.comp"

	// workgroup size of both compute shaders
	localSize = 8
)

// FrameUniforms is the uniform block both shaders read at binding 0.
type FrameUniforms struct {
	Width  uint32
	Height uint32
	Radius uint32
	Time   float32
}

func (u FrameUniforms) bytes() []byte {
	out := make([]byte, 0, 16)
	out = binary.LittleEndian.AppendUint32(out, u.Width)
	out = binary.LittleEndian.AppendUint32(out, u.Height)
	out = binary.LittleEndian.AppendUint32(out, u.Radius)
	out = binary.LittleEndian.AppendUint32(out, gomath.Float32bits(u.Time))
	return out
}

type Demo struct {
	*engine.Game
	bb *framegraph.Blackboard
}

type demoState struct {
	elapsed float64
	radius  uint32
	width   uint32
	height  uint32
}

func NewDemo() *Demo {
	d := &Demo{
		Game: &engine.Game{
			State:           &demoState{radius: 2},
			FallbackShaders: PlaceholderShaders{},
		},
		bb: framegraph.NewBlackboard(),
	}

	d.FnInitialize = d.Initialize
	d.FnUpdate = d.Update
	d.FnRender = d.Render
	d.FnOnResize = d.OnResize
	d.FnShutdown = d.Shutdown

	return d
}

func (d *Demo) state() *demoState {
	return d.State.(*demoState)
}

func GradientState() metadata.PipelineState {
	return metadata.PipelineState{
		Name:   GradientPipeline,
		Kind:   metadata.PipelineKindCompute,
		Stages: []metadata.ShaderStage{{Kind: metadata.ShaderStageCompute, Name: GradientShader}},
		Layout: metadata.ShaderArguments{
			metadata.UniformBinding(0, 0),
			metadata.StorageImageBinding(1, 0, metadata.ShaderAccessWrite),
		},
	}
}

func BlurState() metadata.PipelineState {
	return metadata.PipelineState{
		Name:   BlurPipeline,
		Kind:   metadata.PipelineKindCompute,
		Stages: []metadata.ShaderStage{{Kind: metadata.ShaderStageCompute, Name: BlurShader}},
		Layout: metadata.ShaderArguments{
			metadata.UniformBinding(0, 0),
			metadata.StorageImageBinding(1, 0, metadata.ShaderAccessRead),
			metadata.StorageImageBinding(2, 0, metadata.ShaderAccessWrite),
		},
	}
}

// Initialize builds the pipelines the passes use, one job per pipeline.
func (d *Demo) Initialize() error {
	core.LogDebug("demo initialize")
	lib := d.Renderer.Pipelines()
	jobs := make(map[string]systems.Job)
	for _, state := range []metadata.PipelineState{GradientState(), BlurState()} {
		jobs["pipeline "+state.Name] = func(cmdpool.WorkerID) error {
			_, err := lib.Get(state)
			return err
		}
	}
	if err := d.Jobs.RunAll(context.Background(), jobs); err != nil {
		core.LogError("failed to build the demo pipelines")
		return err
	}
	return nil
}

func (d *Demo) Update(deltaTime float64) error {
	s := d.state()
	s.elapsed += deltaTime
	// radius breathes between 1 and 4 pixels
	s.radius = 1 + uint32(gomath.Abs(gomath.Sin(s.elapsed))*3)

	desc := d.Renderer.Backend().SwapchainDesc()
	framegraph.Put(d.bb, FrameUniforms{
		Width:  desc.Resolution.Width,
		Height: desc.Resolution.Height,
		Radius: s.radius,
		Time:   float32(s.elapsed),
	})
	return nil
}

func (d *Demo) Render(ctx context.Context, deltaTime float64) error {
	return d.Renderer.DrawFrame(ctx, d.BuildFrame, d.bb)
}

func (d *Demo) OnResize(width uint32, height uint32) error {
	s := d.state()
	s.width, s.height = width, height
	core.LogDebug("demo resized to %dx%d", width, height)
	return nil
}

type gradientOutput struct {
	scene    framegraph.Resource[framegraph.Image]
	uniforms framegraph.Resource[framegraph.Buffer[FrameUniforms]]
}

// BuildFrame records the three passes around backbuffer.
func (d *Demo) BuildFrame(fg *framegraph.Framegraph, backbuffer framegraph.Resource[framegraph.Image]) error {
	backend := d.Renderer.Backend()
	lib := d.Renderer.Pipelines()
	res := backend.SwapchainDesc().Resolution
	desc := metadata.ImageDesc{Resolution: res, Format: metadata.FormatR8G8B8A8Unorm, Kind: metadata.ImageKindColor}
	groupsX, groupsY := math.DivCeil(res.Width, localSize), math.DivCeil(res.Height, localSize)

	gradient, err := framegraph.AddPass(fg, "gradient", func(tb *framegraph.TaskBuilder) (gradientOutput, framegraph.ExecutablePass) {
		out := gradientOutput{
			scene:    tb.CreateImage("scene", desc),
			uniforms: framegraph.CreateBuffer[FrameUniforms](tb, "uniforms", 1, metadata.BufferUsageUniform),
		}
		return out, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			pipeline, ok := lib.Lookup(GradientPipeline)
			if !ok {
				return fmt.Errorf("pipeline %q: %w", GradientPipeline, core.ErrPipelineCompile)
			}
			scene, err := reg.Image(out.scene)
			if err != nil {
				return err
			}
			ubo, err := framegraph.LookupBuffer(reg, out.uniforms)
			if err != nil {
				return err
			}
			uniforms, _ := framegraph.Get[FrameUniforms](bb)
			if err := backend.WriteBuffer(ubo, 0, uniforms.bytes()); err != nil {
				return err
			}
			list.RecordCompute().Dispatch(command.Dispatch{
				Pipeline: pipeline,
				Arguments: metadata.ShaderArguments{
					metadata.UniformBinding(0, ubo),
					metadata.StorageImageBinding(1, scene, metadata.ShaderAccessWrite),
				},
				X: groupsX, Y: groupsY, Z: 1,
			}).Submit()
			return nil
		})
	})
	if err != nil {
		return err
	}

	blurred, err := framegraph.AddPass(fg, "blur", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		src := framegraph.Read(tb, gradient.scene)
		uniforms := framegraph.Read(tb, gradient.uniforms)
		dst := tb.CreateImage("blurred", desc)
		return dst, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			pipeline, ok := lib.Lookup(BlurPipeline)
			if !ok {
				return fmt.Errorf("pipeline %q: %w", BlurPipeline, core.ErrPipelineCompile)
			}
			s, err := reg.Image(src)
			if err != nil {
				return err
			}
			out, err := reg.Image(dst)
			if err != nil {
				return err
			}
			ubo, err := framegraph.LookupBuffer(reg, uniforms)
			if err != nil {
				return err
			}
			list.RecordCompute().Dispatch(command.Dispatch{
				Pipeline: pipeline,
				Arguments: metadata.ShaderArguments{
					metadata.UniformBinding(0, ubo),
					metadata.StorageImageBinding(1, s, metadata.ShaderAccessRead),
					metadata.StorageImageBinding(2, out, metadata.ShaderAccessWrite),
				},
				X: groupsX, Y: groupsY, Z: 1,
			}).Submit()
			return nil
		})
	})
	if err != nil {
		return err
	}

	_, err = framegraph.AddPass(fg, "present", func(tb *framegraph.TaskBuilder) (framegraph.Resource[framegraph.Image], framegraph.ExecutablePass) {
		src := framegraph.Read(tb, blurred)
		dst := framegraph.Write(tb, backbuffer)
		return dst, framegraph.PassFunc(func(reg *framegraph.Registry, bb *framegraph.Blackboard, list *command.List) error {
			s, err := reg.Image(src)
			if err != nil {
				return err
			}
			out, err := reg.Image(dst)
			if err != nil {
				return err
			}
			list.RecordTransfer().CopyImage(s, out).Submit()
			return nil
		})
	})
	return err
}

func (d *Demo) Shutdown() error {
	core.LogDebug("demo shutdown")
	return nil
}

// PlaceholderShaders serves a minimal SPIR-V header for every shader. It is
// enough for the null backend, which never compiles code.
type PlaceholderShaders struct{}

func (PlaceholderShaders) Code(name string) ([]uint32, error) {
	return []uint32{loaders.SPIRVMagic, 0x00010000, 0, 1, 0}, nil
}
