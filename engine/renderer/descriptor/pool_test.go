package descriptor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	maxSets uint32
	sizes   Sizes
	used    uint32
	resets  int
}

type countingDevice struct {
	pools     []*fakePool
	writes    map[metadata.DescriptorSetHandle][]metadata.Binding
	nextSet   metadata.DescriptorSetHandle
	destroyed int
	failPool  bool
	failWrite error
}

func newCountingDevice() *countingDevice {
	return &countingDevice{writes: make(map[metadata.DescriptorSetHandle][]metadata.Binding)}
}

func (d *countingDevice) CreateDescriptorPool(maxSets uint32, shape Shape, sizes Sizes) (metadata.DescriptorPoolHandle, error) {
	if d.failPool {
		return 0, core.ErrOutOfDeviceMemory
	}
	d.pools = append(d.pools, &fakePool{maxSets: maxSets, sizes: sizes})
	return metadata.DescriptorPoolHandle(len(d.pools)), nil
}

func (d *countingDevice) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error) {
	p := d.pools[pool-1]
	if p.used == p.maxSets {
		return 0, core.ErrOutOfPoolMemory
	}
	p.used++
	d.nextSet++
	return d.nextSet, nil
}

func (d *countingDevice) WriteDescriptorSet(set metadata.DescriptorSetHandle, bindings []metadata.Binding) error {
	if err := d.failWrite; err != nil {
		d.failWrite = nil
		return err
	}
	d.writes[set] = bindings
	return nil
}

func (d *countingDevice) ResetDescriptorPool(pool metadata.DescriptorPoolHandle) error {
	p := d.pools[pool-1]
	p.used = 0
	p.resets++
	return nil
}

func (d *countingDevice) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {
	d.destroyed++
}

func uniformArgs(buffer metadata.BufferHandle) metadata.ShaderArguments {
	return metadata.ShaderArguments{metadata.UniformBinding(0, buffer)}
}

func TestPoolGrowthBoundary(t *testing.T) {
	for _, tc := range []struct {
		allocations int
		pools       int
	}{
		{allocations: 1, pools: 1},
		{allocations: 50, pools: 1},
		{allocations: 51, pools: 2},
		{allocations: 100, pools: 2},
		{allocations: 101, pools: 3},
	} {
		t.Run(fmt.Sprintf("%d allocations", tc.allocations), func(t *testing.T) {
			dev := newCountingDevice()
			pool := NewPool(dev, 50)
			var last Handle
			for i := 0; i < tc.allocations; i++ {
				h, err := pool.Allocate(uniformArgs(1))
				require.NoError(t, err)
				last = h
			}
			assert.Len(t, dev.pools, tc.pools)
			assert.Equal(t, tc.pools-1, last.Block)
			assert.Equal(t, metadata.DescriptorPoolHandle(tc.pools), last.Pool)
		})
	}
}

func TestFiftyFirstAllocationLandsInSecondPool(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 50)

	handles := make([]Handle, 0, 51)
	for i := 0; i < 51; i++ {
		h, err := pool.Allocate(uniformArgs(metadata.BufferHandle(i + 1)))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.Len(t, dev.pools, 2)
	for _, h := range handles[:50] {
		assert.Equal(t, metadata.DescriptorPoolHandle(1), h.Pool)
	}
	assert.Equal(t, metadata.DescriptorPoolHandle(2), handles[50].Pool)

	// budget is one uniform per set times the block size
	assert.Equal(t, uint32(50), dev.pools[0].maxSets)
	assert.Equal(t, Sizes{UniformBuffers: 50}, dev.pools[0].sizes)

	// bindings are written immediately
	assert.Equal(t, metadata.BufferHandle(51), dev.writes[handles[50].Set][0].Buffer)
}

func TestResetIsIdempotent(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 50)

	require.NoError(t, pool.Reset())
	require.NoError(t, pool.Reset())
	assert.Equal(t, Stats{}, pool.Stats())
	assert.Empty(t, dev.pools)
}

func TestResetReusesNativePools(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 4)

	for i := 0; i < 6; i++ {
		_, err := pool.Allocate(uniformArgs(1))
		require.NoError(t, err)
	}
	assert.Equal(t, Stats{Shapes: 1, NativePools: 2, Allocations: 6}, pool.Stats())

	require.NoError(t, pool.Reset())
	assert.Equal(t, Stats{Shapes: 1, NativePools: 2, Allocations: 0}, pool.Stats())
	assert.Equal(t, 1, dev.pools[0].resets)
	assert.Equal(t, 1, dev.pools[1].resets)

	h, err := pool.Allocate(uniformArgs(1))
	require.NoError(t, err)
	assert.Equal(t, 0, h.Block)
	assert.Len(t, dev.pools, 2)

	// a second reset with nothing allocated since the first one
	require.NoError(t, pool.Reset())
	require.NoError(t, pool.Reset())
	assert.Equal(t, 2, dev.pools[0].resets)
}

func TestFailedWriteKeepsItsSlot(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 2)
	badBinding := errors.New("bad binding")
	dev.failWrite = badBinding

	_, err := pool.Allocate(uniformArgs(1))
	require.ErrorIs(t, err, badBinding)
	assert.Equal(t, Stats{Shapes: 1, NativePools: 1, Allocations: 1}, pool.Stats())

	// the first pool is full after one more set, the third grows a new one
	h, err := pool.Allocate(uniformArgs(1))
	require.NoError(t, err)
	assert.Equal(t, 0, h.Block)
	h, err = pool.Allocate(uniformArgs(1))
	require.NoError(t, err)
	assert.Equal(t, 1, h.Block)
	assert.Len(t, dev.pools, 2)
}

func TestResetReturnsSetsWhoseWriteFailed(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 2)
	dev.failWrite = errors.New("bad binding")

	_, err := pool.Allocate(uniformArgs(1))
	require.Error(t, err)
	require.NoError(t, pool.Reset())
	assert.Equal(t, 1, dev.pools[0].resets)
	assert.Equal(t, uint32(0), dev.pools[0].used)
}

func TestShapesGetSeparateAllocators(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 50)

	_, err := pool.Allocate(uniformArgs(1))
	require.NoError(t, err)
	// same shape, different resource
	_, err = pool.Allocate(uniformArgs(2))
	require.NoError(t, err)
	// same types, different order
	_, err = pool.Allocate(metadata.ShaderArguments{
		metadata.StorageImageBinding(0, 3, metadata.ShaderAccessWrite),
		metadata.StorageImageBinding(1, 4, metadata.ShaderAccessRead),
	})
	require.NoError(t, err)
	_, err = pool.Allocate(metadata.ShaderArguments{
		metadata.StorageImageBinding(1, 4, metadata.ShaderAccessRead),
		metadata.StorageImageBinding(0, 3, metadata.ShaderAccessWrite),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, pool.Stats().Shapes)
	assert.Len(t, dev.pools, 3)

	a, ok := pool.Allocator(ShapeOf(uniformArgs(9)))
	require.True(t, ok)
	assert.Equal(t, uint32(2), a.Allocations())
}

func TestAllocateRejectsMismatchedBindings(t *testing.T) {
	pool := NewPool(newCountingDevice(), 50)

	cases := map[string]metadata.ShaderArguments{
		"empty":          {},
		"duplicate slot": {metadata.UniformBinding(0, 1), metadata.UniformBinding(0, 2)},
		"missing buffer": {metadata.UniformBinding(0, 0)},
		"image in buffer slot": {{
			Slot: 0, Type: metadata.DescriptorTypeStorageBuffer, Buffer: 1, Image: 2,
		}},
		"missing image": {metadata.StorageImageBinding(0, 0, metadata.ShaderAccessRead)},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pool.Allocate(args)
			assert.True(t, errors.Is(err, core.ErrShapeMismatch), "got %v", err)
		})
	}
	assert.Equal(t, 0, pool.Stats().Shapes)
}

func TestAllocatePropagatesPoolCreationFailure(t *testing.T) {
	dev := newCountingDevice()
	dev.failPool = true
	pool := NewPool(dev, 50)

	_, err := pool.Allocate(uniformArgs(1))
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
}

func TestDestroyReleasesEveryNativePool(t *testing.T) {
	dev := newCountingDevice()
	pool := NewPool(dev, 2)
	for i := 0; i < 5; i++ {
		_, err := pool.Allocate(uniformArgs(1))
		require.NoError(t, err)
	}
	pool.Destroy()
	assert.Equal(t, 3, dev.destroyed)
	assert.Equal(t, Stats{}, pool.Stats())
}

func TestSizesFromBindings(t *testing.T) {
	sizes := SizesFromBindings([]metadata.Binding{
		metadata.UniformBinding(0, 1),
		metadata.StorageBinding(1, 2, metadata.ShaderAccessReadWrite),
		metadata.StorageBinding(2, 3, metadata.ShaderAccessRead),
		metadata.StorageImageBinding(3, 4, metadata.ShaderAccessWrite),
	})
	assert.Equal(t, Sizes{UniformBuffers: 1, StorageBuffers: 2, StorageImages: 1}, sizes)
	assert.Equal(t, uint32(4), sizes.Total())
	assert.Equal(t, Sizes{UniformBuffers: 3, StorageBuffers: 6, StorageImages: 3}, sizes.Scale(3))
}

func TestShapeKey(t *testing.T) {
	shape := ShapeOf([]metadata.Binding{
		metadata.UniformBinding(0, 1),
		metadata.StorageImageBinding(2, 4, metadata.ShaderAccessWrite),
	})
	assert.Equal(t, "0:uniform|2:storage_image", shape.Key())
	assert.True(t, shape.Equal(Shape{{0, metadata.DescriptorTypeUniformBuffer}, {2, metadata.DescriptorTypeStorageImage}}))
	assert.False(t, shape.Equal(shape[:1]))
}
