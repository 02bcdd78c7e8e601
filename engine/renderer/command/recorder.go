package command

import (
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type recorder struct {
	list     *List
	queue    metadata.QueueKind
	commands []Command
}

func (r *recorder) push(c Command) {
	if r.list == nil {
		panic(core.ErrRecorderSubmitted)
	}
	r.commands = append(r.commands, c)
}

func (r *recorder) submit() {
	if r.list == nil {
		panic(core.ErrRecorderSubmitted)
	}
	// an empty recorder produces no submit
	if len(r.commands) > 0 {
		r.list.append(Submit{Queue: r.queue, Commands: r.commands})
	}
	r.list = nil
	r.commands = nil
}

// GraphicsRecorder accumulates commands for the graphics queue.
type GraphicsRecorder struct {
	recorder
}

func (r *GraphicsRecorder) DrawIndexed(d Draw) *GraphicsRecorder {
	r.push(d)
	return r
}

func (r *GraphicsRecorder) CopyImage(src, dst metadata.ImageHandle) *GraphicsRecorder {
	r.push(CopyImage{Src: src, Dst: dst})
	return r
}

func (r *GraphicsRecorder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) *GraphicsRecorder {
	r.push(CopyBuffer{Src: src, Dst: dst, Size: size})
	return r
}

// Submit appends the recorded commands to the parent list. The recorder
// must not be used afterwards.
func (r *GraphicsRecorder) Submit() {
	r.submit()
}

// ComputeRecorder accumulates commands for the compute queue.
type ComputeRecorder struct {
	recorder
}

func (r *ComputeRecorder) Dispatch(d Dispatch) *ComputeRecorder {
	r.push(d)
	return r
}

func (r *ComputeRecorder) CopyImage(src, dst metadata.ImageHandle) *ComputeRecorder {
	r.push(CopyImage{Src: src, Dst: dst})
	return r
}

func (r *ComputeRecorder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) *ComputeRecorder {
	r.push(CopyBuffer{Src: src, Dst: dst, Size: size})
	return r
}

func (r *ComputeRecorder) Submit() {
	r.submit()
}

// TransferRecorder only records copies.
type TransferRecorder struct {
	recorder
}

func (r *TransferRecorder) CopyImage(src, dst metadata.ImageHandle) *TransferRecorder {
	r.push(CopyImage{Src: src, Dst: dst})
	return r
}

func (r *TransferRecorder) CopyBuffer(src, dst metadata.BufferHandle, size uint64) *TransferRecorder {
	r.push(CopyBuffer{Src: src, Dst: dst, Size: size})
	return r
}

func (r *TransferRecorder) Submit() {
	r.submit()
}
