package cmdpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/containers"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// WorkerID names the goroutine (job worker) that records commands.
type WorkerID int

// MainWorker is the worker id of code not running on the job system.
const MainWorker WorkerID = 0

const DefaultMaxBuffers = 256

var ErrPoolExhausted = errors.New("command buffer pool exhausted")

// Allocator creates the native objects behind a pool. P is the native
// command pool type and B the native command buffer type.
type Allocator[P, B any] interface {
	CreateCommandPool(worker WorkerID) (P, error)
	AllocateCommandBuffer(pool P) (B, error)
	ResetCommandBuffer(pool P, buffer B) error
	// DestroyCommandPool frees the pool and every buffer allocated from it.
	DestroyCommandPool(pool P)
}

// Pool hands each worker its own WorkerPool, created on first use.
type Pool[P, B any] struct {
	alloc      Allocator[P, B]
	maxBuffers int

	mu      sync.Mutex
	workers map[WorkerID]*WorkerPool[P, B]
}

func New[P, B any](alloc Allocator[P, B], maxBuffers int) *Pool[P, B] {
	if maxBuffers <= 0 {
		maxBuffers = DefaultMaxBuffers
	}
	return &Pool[P, B]{
		alloc:      alloc,
		maxBuffers: maxBuffers,
		workers:    make(map[WorkerID]*WorkerPool[P, B]),
	}
}

// Worker returns the pool owned by id, creating its native command pool
// lazily.
func (p *Pool[P, B]) Worker(id WorkerID) (*WorkerPool[P, B], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if wp, ok := p.workers[id]; ok {
		return wp, nil
	}
	native, err := p.alloc.CreateCommandPool(id)
	if err != nil {
		err = fmt.Errorf("failed to create command pool for worker %d: %w", id, err)
		core.LogError(err.Error())
		return nil, err
	}
	wp := &WorkerPool[P, B]{
		id:      id,
		native:  native,
		alloc:   p.alloc,
		max:     p.maxBuffers,
		free:    containers.NewRingQueue[*Buffer[B]](p.maxBuffers),
		returns: make(chan *Buffer[B], p.maxBuffers),
	}
	p.workers[id] = wp
	core.LogDebug("command pool created for worker %d", id)
	return wp, nil
}

// Workers reports how many native command pools exist.
func (p *Pool[P, B]) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Destroy frees every native command pool. No buffer may be in flight.
func (p *Pool[P, B]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, wp := range p.workers {
		p.alloc.DestroyCommandPool(wp.native)
		delete(p.workers, id)
	}
}

// WorkerPool is owned by a single worker. Acquire must only be called from
// that worker; Buffer.Release may be called from anywhere.
type WorkerPool[P, B any] struct {
	id     WorkerID
	native P
	alloc  Allocator[P, B]
	max    int

	free      *containers.RingQueue[*Buffer[B]]
	returns   chan *Buffer[B]
	allocated int
}

func (w *WorkerPool[P, B]) ID() WorkerID {
	return w.id
}

func (w *WorkerPool[P, B]) Native() P {
	return w.native
}

// Allocated is the number of native buffers this worker ever allocated.
func (w *WorkerPool[P, B]) Allocated() int {
	return w.allocated
}

// Acquire returns a free buffer, recycling returned ones before allocating.
func (w *WorkerPool[P, B]) Acquire() (*Buffer[B], error) {
	w.drain()

	if buf, err := w.free.Dequeue(); err == nil {
		if err := w.alloc.ResetCommandBuffer(w.native, buf.Handle); err != nil {
			return nil, fmt.Errorf("failed to reset command buffer: %w", err)
		}
		buf.owner = w.returns
		return buf, nil
	}

	if w.allocated >= w.max {
		return nil, fmt.Errorf("worker %d holds %d buffers: %w", w.id, w.allocated, ErrPoolExhausted)
	}
	handle, err := w.alloc.AllocateCommandBuffer(w.native)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate command buffer: %w", err)
	}
	w.allocated++
	return &Buffer[B]{
		Handle: handle,
		state:  StateFree,
		owner:  w.returns,
		worker: w.id,
	}, nil
}

// drain moves every returned buffer onto the free list without blocking.
func (w *WorkerPool[P, B]) drain() {
	for {
		select {
		case buf := <-w.returns:
			// never fails: at most max buffers exist
			_ = w.free.Enqueue(buf)
		default:
			return
		}
	}
}

// Free reports how many buffers are ready for reuse, after draining returns.
func (w *WorkerPool[P, B]) Free() int {
	w.drain()
	return w.free.Len()
}
