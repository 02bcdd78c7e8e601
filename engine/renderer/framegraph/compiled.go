package framegraph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
)

// CompiledGraph is an immutable graph whose resources are allocated. It can
// be executed any number of times.
type CompiledGraph struct {
	fg        *Framegraph
	order     []int
	frame     uint64
	clock     *core.Clock
	destroyed bool
}

func (g *CompiledGraph) ID() uuid.UUID {
	return g.fg.id
}

func (g *CompiledGraph) Name() string {
	return g.fg.name
}

func (g *CompiledGraph) Registry() *Registry {
	return g.fg.registry
}

func (g *CompiledGraph) Pool() *descriptor.Pool {
	return g.fg.pool
}

// Frame is the number of frames executed successfully.
func (g *CompiledGraph) Frame() uint64 {
	return g.frame
}

func (g *CompiledGraph) Passes() []string {
	return g.fg.Passes()
}

func (g *CompiledGraph) SubmissionOrder() ([]string, error) {
	return g.fg.SubmissionOrder()
}

func (g *CompiledGraph) String() string {
	return g.fg.String()
}

// Execute runs one frame: every reachable pass records into a fresh command
// list in submission order, the list is submitted through the backend and
// the descriptor pool is reset. When submission fails the pool keeps its
// sets, since the GPU may still reference them.
func (g *CompiledGraph) Execute(ctx context.Context, bb *Blackboard) error {
	if g.destroyed {
		return fmt.Errorf("execute %s: %w", g.fg.name, core.ErrGraphNotCompiled)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if bb == nil {
		bb = NewBlackboard()
	}
	g.clock.Start()

	if g.order == nil {
		order, err := g.fg.submissionOrder()
		if err != nil {
			core.LogError("execute %s: %s", g.fg.name, err)
			return err
		}
		g.order = order
	}

	list := command.NewList()
	for _, idx := range g.order {
		if err := g.fg.executables[idx].Execute(g.fg.registry, bb, list); err != nil {
			err = fmt.Errorf("execute pass %q: %w", g.fg.passes[idx].name, err)
			core.LogError(err.Error())
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := g.fg.ctx.Backend.SubmitCommands(ctx, g.fg.ctx.Worker, g.fg.pool, list); err != nil {
		err = fmt.Errorf("submit %s: %w", g.fg.name, err)
		core.LogError(err.Error())
		return err
	}
	if err := g.fg.pool.Reset(); err != nil {
		err = fmt.Errorf("reset descriptor pool: %w", err)
		core.LogError(err.Error())
		return err
	}

	g.clock.Stop()
	g.frame++
	if m := g.fg.ctx.Metrics; m != nil {
		m.Update(g.clock.ElapsedSeconds())
	}

	data := core.EventContext{}
	data.Data.U64[0] = g.frame
	data.Data.F64[0] = g.clock.ElapsedSeconds()
	data.Data.C[0] = g.fg.name
	core.EventFire(core.EVENT_CODE_FRAME_COMPLETED, g, data)

	core.LogDebug("framegraph %s frame %d: %d passes, %d submits in %s", g.fg.name, g.frame, len(g.order), list.Len(), g.clock.Elapsed())
	return nil
}

// Destroy releases every resource the graph allocated. Imported images are
// left to their owner.
func (g *CompiledGraph) Destroy() {
	if g.destroyed {
		return
	}
	g.destroyed = true
	g.fg.release()
	g.fg.pool.Destroy()
}
