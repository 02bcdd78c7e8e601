package cmdpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNativePool struct {
	worker WorkerID
	next   int
}

type fakeAllocator struct {
	mu        sync.Mutex
	pools     []*fakeNativePool
	resets    int
	destroyed int
}

func (a *fakeAllocator) CreateCommandPool(worker WorkerID) (*fakeNativePool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &fakeNativePool{worker: worker}
	a.pools = append(a.pools, p)
	return p, nil
}

func (a *fakeAllocator) AllocateCommandBuffer(pool *fakeNativePool) (int, error) {
	pool.next++
	return pool.next, nil
}

func (a *fakeAllocator) ResetCommandBuffer(pool *fakeNativePool, buffer int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
	return nil
}

func (a *fakeAllocator) DestroyCommandPool(pool *fakeNativePool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyed++
}

func TestBufferStateMachine(t *testing.T) {
	pool := New[*fakeNativePool, int](&fakeAllocator{}, 4)
	wp, err := pool.Worker(MainWorker)
	require.NoError(t, err)

	buf, err := wp.Acquire()
	require.NoError(t, err)
	assert.Equal(t, StateFree, buf.State())

	// cannot skip recording
	assert.ErrorIs(t, buf.MarkSubmitted(), ErrInvalidTransition)

	require.NoError(t, buf.Begin())
	require.NoError(t, buf.End())
	require.NoError(t, buf.MarkSubmitted())
	assert.ErrorIs(t, buf.Release(), ErrInvalidTransition)
	require.NoError(t, buf.MarkComplete())
	assert.Equal(t, StateComplete, buf.State())

	require.NoError(t, buf.Release())
	assert.Equal(t, StateFree, buf.State())
	assert.ErrorIs(t, buf.Release(), ErrInvalidTransition)
}

func TestReturnedBuffersAreRecycled(t *testing.T) {
	alloc := &fakeAllocator{}
	pool := New[*fakeNativePool, int](alloc, 4)
	wp, err := pool.Worker(MainWorker)
	require.NoError(t, err)

	first, err := wp.Acquire()
	require.NoError(t, err)
	second, err := wp.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, wp.Allocated())

	require.NoError(t, first.Release())
	require.NoError(t, second.Release())
	assert.Equal(t, 2, wp.Free())

	again, err := wp.Acquire()
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 2, wp.Allocated())
	assert.Equal(t, 1, alloc.resets)
}

func TestPoolIsBounded(t *testing.T) {
	pool := New[*fakeNativePool, int](&fakeAllocator{}, 2)
	wp, err := pool.Worker(MainWorker)
	require.NoError(t, err)

	_, err = wp.Acquire()
	require.NoError(t, err)
	_, err = wp.Acquire()
	require.NoError(t, err)
	_, err = wp.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestWorkersOwnDistinctNativePools(t *testing.T) {
	alloc := &fakeAllocator{}
	pool := New[*fakeNativePool, int](alloc, 8)

	a, err := pool.Worker(1)
	require.NoError(t, err)
	b, err := pool.Worker(2)
	require.NoError(t, err)
	again, err := pool.Worker(1)
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a.Native(), b.Native())
	assert.Equal(t, WorkerID(2), b.Native().worker)
	assert.Equal(t, 2, pool.Workers())

	pool.Destroy()
	assert.Equal(t, 2, alloc.destroyed)
	assert.Equal(t, 0, pool.Workers())
}

func TestReleaseFromOtherGoroutines(t *testing.T) {
	pool := New[*fakeNativePool, int](&fakeAllocator{}, 16)
	wp, err := pool.Worker(3)
	require.NoError(t, err)

	bufs := make([]*Buffer[int], 16)
	for i := range bufs {
		bufs[i], err = wp.Acquire()
		require.NoError(t, err)
		assert.Equal(t, WorkerID(3), bufs[i].Worker())
	}

	var wg sync.WaitGroup
	for _, b := range bufs {
		wg.Add(1)
		go func(b *Buffer[int]) {
			defer wg.Done()
			assert.NoError(t, b.Release())
		}(b)
	}
	wg.Wait()

	assert.Equal(t, 16, wp.Free())
	_, err = wp.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 16, wp.Allocated())
}
