package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFireStopsWhenHandled(t *testing.T) {
	require.True(t, EventInitialize())
	defer EventShutdown()

	first, second := &struct{ n int }{}, &struct{ n int }{}
	var calls []string

	assert.True(t, EventRegister(EVENT_CODE_SHADER_RELOADED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "first:"+data.Data.C[0])
		return true
	}))
	assert.True(t, EventRegister(EVENT_CODE_SHADER_RELOADED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "second")
		return false
	}))
	assert.False(t, EventRegister(EVENT_CODE_SHADER_RELOADED, first, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }))

	ctx := EventContext{}
	ctx.Data.C[0] = "blur"
	assert.True(t, EventFire(EVENT_CODE_SHADER_RELOADED, nil, ctx))
	assert.Equal(t, []string{"first:blur"}, calls)

	assert.True(t, EventUnregister(EVENT_CODE_SHADER_RELOADED, first))
	assert.False(t, EventUnregister(EVENT_CODE_SHADER_RELOADED, first))
	assert.False(t, EventFire(EVENT_CODE_SHADER_RELOADED, nil, ctx))
	assert.Equal(t, []string{"first:blur", "second"}, calls)
}

func TestEventsBeforeInitialize(t *testing.T) {
	assert.False(t, EventFire(EVENT_CODE_FRAME_COMPLETED, nil, EventContext{}))
	assert.False(t, EventRegister(EVENT_CODE_FRAME_COMPLETED, nil, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return true }))
}
