package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetricsAverages(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(metricsAvgCount); i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Equal(t, uint64(metricsAvgCount), m.Frames())

	// 30 frames of 10ms is 300ms, no full second yet
	assert.Equal(t, 0.0, m.FPS())
	for i := 0; i < 80; i++ {
		m.Update(0.010)
	}
	assert.Greater(t, m.FPS(), 0.0)
}

func TestClockMeasuresElapsed(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Stop()
	elapsed := c.Elapsed()
	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)

	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}
