package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// Device is the part of a backend the descriptor pool drives.
type Device interface {
	// CreateDescriptorPool creates a native pool able to hold maxSets sets of
	// the given shape, with a total descriptor budget of sizes.
	CreateDescriptorPool(maxSets uint32, shape Shape, sizes Sizes) (metadata.DescriptorPoolHandle, error)
	AllocateDescriptorSet(pool metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error)
	WriteDescriptorSet(set metadata.DescriptorSetHandle, bindings []metadata.Binding) error
	ResetDescriptorPool(pool metadata.DescriptorPoolHandle) error
	DestroyDescriptorPool(pool metadata.DescriptorPoolHandle)
}

// Handle identifies one allocated descriptor set for the current frame.
type Handle struct {
	Set  metadata.DescriptorSetHandle
	Pool metadata.DescriptorPoolHandle
	// Block is the index of the native pool within its allocator.
	Block int
}

// LinearPoolAllocator serves one shape from a growing list of fixed size
// native pools. Allocation is a bump of the per-frame counter.
type LinearPoolAllocator struct {
	device      Device
	shape       Shape
	sizes       Sizes
	blockSize   uint32
	pools       []metadata.DescriptorPoolHandle
	allocations uint32
}

func newLinearPoolAllocator(device Device, shape Shape, sizes Sizes, blockSize uint32) *LinearPoolAllocator {
	return &LinearPoolAllocator{
		device:    device,
		shape:     shape,
		sizes:     sizes,
		blockSize: blockSize,
	}
}

func (a *LinearPoolAllocator) Allocate(bindings []metadata.Binding) (Handle, error) {
	block := int(a.allocations / a.blockSize)
	if block >= len(a.pools) {
		pool, err := a.device.CreateDescriptorPool(a.blockSize, a.shape, a.sizes.Scale(a.blockSize))
		if err != nil {
			return Handle{}, fmt.Errorf("failed to create descriptor pool for shape %s: %w", a.shape.Key(), err)
		}
		a.pools = append(a.pools, pool)
		core.LogDebug("descriptor shape %s grew to %d pools", a.shape.Key(), len(a.pools))
	}

	pool := a.pools[block]
	set, err := a.device.AllocateDescriptorSet(pool)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to allocate descriptor set from pool %d: %w", pool, err)
	}
	// the set holds its slot until the next reset even if the write fails
	a.allocations++
	if err := a.device.WriteDescriptorSet(set, bindings); err != nil {
		return Handle{}, fmt.Errorf("failed to write descriptor set %d: %w", set, err)
	}
	return Handle{Set: set, Pool: pool, Block: block}, nil
}

// Reset returns every set of every native pool and zeroes the counter.
// Native pools are kept for the next frame. Sets whose write failed count as
// allocated.
func (a *LinearPoolAllocator) Reset() error {
	if a.allocations == 0 {
		return nil
	}
	for _, pool := range a.pools {
		if err := a.device.ResetDescriptorPool(pool); err != nil {
			return fmt.Errorf("failed to reset descriptor pool %d: %w", pool, err)
		}
	}
	a.allocations = 0
	return nil
}

func (a *LinearPoolAllocator) destroy() {
	for _, pool := range a.pools {
		a.device.DestroyDescriptorPool(pool)
	}
	a.pools = nil
	a.allocations = 0
}

func (a *LinearPoolAllocator) Allocations() uint32 {
	return a.allocations
}

func (a *LinearPoolAllocator) Pools() int {
	return len(a.pools)
}
