package core

import (
	"fmt"
	"sync"
)

// HandleTable hands out small integer handles for backend objects. Released
// slots are reused. Handle 0 is never issued so the zero value can mean "none".
type HandleTable[T any] struct {
	mu     sync.RWMutex
	owners []T
	used   []bool
	free   []uint32
	live   int
}

func NewHandleTable[T any]() *HandleTable[T] {
	return &HandleTable[T]{}
}

// Acquire stores owner and returns its handle.
func (h *HandleTable[T]) Acquire(owner T) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.live++
	// Existing free spot. Take it.
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.owners[idx] = owner
		h.used[idx] = true
		return idx + 1
	}
	h.owners = append(h.owners, owner)
	h.used = append(h.used, true)
	return uint32(len(h.owners))
}

func (h *HandleTable[T]) Get(id uint32) (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var zero T
	if id == 0 || int(id) > len(h.owners) || !h.used[id-1] {
		return zero, false
	}
	return h.owners[id-1], true
}

// Release frees the slot and returns what was stored in it.
func (h *HandleTable[T]) Release(id uint32) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if id == 0 || int(id) > len(h.owners) || !h.used[id-1] {
		return zero, fmt.Errorf("handle %d out of range or already released: %w", id, ErrInvalidHandle)
	}
	owner := h.owners[id-1]
	h.owners[id-1] = zero
	h.used[id-1] = false
	h.free = append(h.free, id-1)
	h.live--
	return owner, nil
}

// Len is the number of live handles.
func (h *HandleTable[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Each calls fn for every live handle in ascending order.
func (h *HandleTable[T]) Each(fn func(id uint32, owner T)) {
	h.mu.RLock()
	ids := make([]uint32, 0, h.live)
	owners := make([]T, 0, h.live)
	for i, u := range h.used {
		if u {
			ids = append(ids, uint32(i)+1)
			owners = append(owners, h.owners[i])
		}
	}
	h.mu.RUnlock()

	for i := range ids {
		fn(ids[i], owners[i])
	}
}
