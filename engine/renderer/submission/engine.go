package submission

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
	"github.com/spaghettifunk/framegraph/engine/renderer/command"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Engine turns a command list into native command buffers and submits them
// in order, one fence per submit. Image layouts are recorded on the device
// once the submit that changed them completed.
type Engine[P, B any] struct {
	device Device[B]
	pools  *cmdpool.Pool[P, B]
}

func NewEngine[P, B any](device Device[B], pools *cmdpool.Pool[P, B]) *Engine[P, B] {
	return &Engine[P, B]{device: device, pools: pools}
}

type inflight[B any] struct {
	buffer *cmdpool.Buffer[B]
	fence  metadata.FenceHandle
}

// Submit records and submits every submit of list on the queue it names,
// waiting for each to complete before the next one starts. Descriptor sets
// come from pool. Command buffers come from worker's pool and go back to it
// once their fence signalled; a buffer whose fence never signalled is kept
// out of circulation.
func (e *Engine[P, B]) Submit(ctx context.Context, worker cmdpool.WorkerID, pool *descriptor.Pool, list *command.List) (err error) {
	wp, err := e.pools.Worker(worker)
	if err != nil {
		return err
	}

	var used []inflight[B]
	defer func() {
		for _, u := range used {
			// a pending fence and its buffer stay alive
			if u.buffer.State() == cmdpool.StateSubmitted {
				core.LogWarn("command buffer of worker %d never completed, leaking it", worker)
				continue
			}
			if u.fence != 0 {
				e.device.DestroyFence(u.fence)
			}
			if rerr := u.buffer.Release(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	for i, s := range list.Submits() {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, err := wp.Acquire()
		if err != nil {
			return err
		}
		used = append(used, inflight[B]{buffer: buf})
		layouts := newLayoutTracker(e.device)
		if err := e.record(buf, pool, layouts, s); err != nil {
			err = fmt.Errorf("record submit %d (%s): %w", i, s.Queue, err)
			core.LogError(err.Error())
			return err
		}

		fence, err := e.device.CreateFence()
		if err != nil {
			return err
		}
		used[len(used)-1].fence = fence

		if err := e.device.QueueSubmit(s.Queue, buf.Handle, fence); err != nil {
			err = fmt.Errorf("submit %d to %s queue: %w", i, s.Queue, err)
			core.LogError(err.Error())
			return err
		}
		if err := buf.MarkSubmitted(); err != nil {
			return err
		}
		if err := e.device.WaitForFence(fence); err != nil {
			err = fmt.Errorf("wait for submit %d: %w", i, err)
			core.LogError(err.Error())
			return err
		}
		if err := buf.MarkComplete(); err != nil {
			return err
		}
		layouts.apply()
	}
	return nil
}

func (e *Engine[P, B]) record(buf *cmdpool.Buffer[B], pool *descriptor.Pool, layouts *layoutTracker[B], s command.Submit) error {
	if err := buf.Begin(); err != nil {
		return err
	}
	enc := e.device.Encoder(buf.Handle)
	if err := enc.Begin(true); err != nil {
		return err
	}
	for _, c := range s.Commands {
		if err := e.translate(enc, pool, layouts, c); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
	}
	if err := enc.End(); err != nil {
		return err
	}
	return buf.End()
}
