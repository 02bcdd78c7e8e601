package command

import (
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersAppendSubmitsInOrder(t *testing.T) {
	list := NewList()

	list.RecordCompute().
		Dispatch(Dispatch{Pipeline: 1, X: 8, Y: 8, Z: 1}).
		CopyImage(1, 2).
		Submit()
	list.RecordTransfer().CopyBuffer(3, 4, 256).Submit()
	list.RecordGraphics().
		DrawIndexed(Draw{Pipeline: 2, Framebuffer: 1, Range: IndexRange{Count: 6}}).
		Submit()

	submits := list.Submits()
	require.Len(t, submits, 3)
	assert.Equal(t, metadata.QueueCompute, submits[0].Queue)
	assert.Equal(t, metadata.QueueTransfer, submits[1].Queue)
	assert.Equal(t, metadata.QueueGraphics, submits[2].Queue)

	assert.Equal(t, []Command{
		Dispatch{Pipeline: 1, X: 8, Y: 8, Z: 1},
		CopyImage{Src: 1, Dst: 2},
	}, submits[0].Commands)
	assert.Equal(t, CopyBuffer{Src: 3, Dst: 4, Size: 256}, submits[1].Commands[0])
	assert.Equal(t, 4, list.Commands())
}

func TestEmptyRecorderAddsNothing(t *testing.T) {
	list := NewList()
	list.RecordGraphics().Submit()
	assert.Equal(t, 0, list.Len())
}

func TestRecorderIsConsumedBySubmit(t *testing.T) {
	list := NewList()
	rec := list.RecordCompute()
	rec.Dispatch(Dispatch{X: 1, Y: 1, Z: 1})
	rec.Submit()

	assert.PanicsWithValue(t, core.ErrRecorderSubmitted, func() {
		rec.Dispatch(Dispatch{X: 1, Y: 1, Z: 1})
	})
	assert.PanicsWithValue(t, core.ErrRecorderSubmitted, func() {
		rec.Submit()
	})
	assert.Equal(t, 1, list.Len())
}

func TestCommandStrings(t *testing.T) {
	assert.Equal(t, "copy_image(1 -> 2)", CopyImage{Src: 1, Dst: 2}.String())
	assert.Equal(t, "dispatch(pipeline=3, 4x5x1)", Dispatch{Pipeline: 3, X: 4, Y: 5, Z: 1}.String())
}
