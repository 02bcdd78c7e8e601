package command

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Command is one high level GPU operation. The submission engine turns each
// variant into native calls plus the barriers it needs.
type Command interface {
	fmt.Stringer
	isCommand()
}

// CopyImage blits the full extent of Src into Dst.
type CopyImage struct {
	Src metadata.ImageHandle
	Dst metadata.ImageHandle
}

type CopyBuffer struct {
	Src  metadata.BufferHandle
	Dst  metadata.BufferHandle
	Size uint64
}

type IndexRange struct {
	First uint32
	Count uint32
}

type Draw struct {
	Pipeline    metadata.PipelineHandle
	RenderPass  metadata.RenderPassHandle
	Framebuffer metadata.FramebufferHandle
	Vertex      metadata.BufferHandle
	Index       metadata.BufferHandle
	Arguments   metadata.ShaderArguments
	Range       IndexRange
}

type Dispatch struct {
	Pipeline  metadata.PipelineHandle
	Arguments metadata.ShaderArguments
	X, Y, Z   uint32
}

func (CopyImage) isCommand()  {}
func (CopyBuffer) isCommand() {}
func (Draw) isCommand()       {}
func (Dispatch) isCommand()   {}

func (c CopyImage) String() string {
	return fmt.Sprintf("copy_image(%d -> %d)", c.Src, c.Dst)
}

func (c CopyBuffer) String() string {
	return fmt.Sprintf("copy_buffer(%d -> %d, %d bytes)", c.Src, c.Dst, c.Size)
}

func (c Draw) String() string {
	return fmt.Sprintf("draw(pipeline=%d, fb=%d, indices=%d+%d)", c.Pipeline, c.Framebuffer, c.Range.First, c.Range.Count)
}

func (c Dispatch) String() string {
	return fmt.Sprintf("dispatch(pipeline=%d, %dx%dx%d)", c.Pipeline, c.X, c.Y, c.Z)
}

// Submit is an ordered batch of commands for one queue, recorded into one
// native command buffer.
type Submit struct {
	Queue    metadata.QueueKind
	Commands []Command
}

// List is the ordered set of submits produced by one frame. Submits keep
// program order.
type List struct {
	submits []Submit
}

func NewList() *List {
	return &List{}
}

func (l *List) Submits() []Submit {
	return l.submits
}

func (l *List) Len() int {
	return len(l.submits)
}

// Commands counts commands across every submit.
func (l *List) Commands() int {
	n := 0
	for _, s := range l.submits {
		n += len(s.Commands)
	}
	return n
}

func (l *List) RecordGraphics() *GraphicsRecorder {
	return &GraphicsRecorder{recorder{list: l, queue: metadata.QueueGraphics}}
}

func (l *List) RecordCompute() *ComputeRecorder {
	return &ComputeRecorder{recorder{list: l, queue: metadata.QueueCompute}}
}

func (l *List) RecordTransfer() *TransferRecorder {
	return &TransferRecorder{recorder{list: l, queue: metadata.QueueTransfer}}
}

func (l *List) append(s Submit) {
	l.submits = append(l.submits, s)
}
