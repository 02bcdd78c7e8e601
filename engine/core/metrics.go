package core

import "sync"

const metricsAvgCount uint8 = 30

// FrameMetrics keeps a rolling frame time average and an FPS counter.
// It is safe for concurrent use; graphs running on different workers may
// feed the same instance.
type FrameMetrics struct {
	mu sync.Mutex

	frameAvgCounter    uint8
	msTimes            [metricsAvgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update records one frame that took frameElapsedTime seconds.
func (m *FrameMetrics) Update(frameElapsedTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAvgCounter] = frameMS
	if m.frameAvgCounter == metricsAvgCount-1 {
		sum := 0.0
		for i := uint8(0); i < metricsAvgCount; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(metricsAvgCount)
	}
	m.frameAvgCounter++
	m.frameAvgCounter %= metricsAvgCount

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.total++
}

func (m *FrameMetrics) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last
// metricsAvgCount frames.
func (m *FrameMetrics) FrameTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msAvg
}

func (m *FrameMetrics) Frames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
