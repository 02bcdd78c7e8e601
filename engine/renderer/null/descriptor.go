package null

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/descriptor"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type descriptorPool struct {
	maxSets uint32
	shape   descriptor.Shape
	sizes   descriptor.Sizes
	sets    []metadata.DescriptorSetHandle
}

type descriptorSet struct {
	pool     metadata.DescriptorPoolHandle
	bindings []metadata.Binding
}

func (b *Backend) CreateDescriptorPool(maxSets uint32, shape descriptor.Shape, sizes descriptor.Sizes) (metadata.DescriptorPoolHandle, error) {
	if err := b.failure(OpCreateDescriptorPool); err != nil {
		return 0, err
	}
	h := b.descriptorPools.Acquire(&descriptorPool{maxSets: maxSets, shape: shape, sizes: sizes})

	b.mu.Lock()
	b.stats.DescriptorPoolsCreated++
	b.mu.Unlock()
	core.LogDebug("null: descriptor pool %d for %s (%d sets)", h, shape.Key(), maxSets)
	return metadata.DescriptorPoolHandle(h), nil
}

func (b *Backend) AllocateDescriptorSet(pool metadata.DescriptorPoolHandle) (metadata.DescriptorSetHandle, error) {
	p, ok := b.descriptorPools.Get(uint32(pool))
	if !ok {
		return 0, fmt.Errorf("descriptor pool %d: %w", pool, core.ErrInvalidHandle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint32(len(p.sets)) >= p.maxSets {
		return 0, fmt.Errorf("descriptor pool %d holds %d sets: %w", pool, p.maxSets, core.ErrOutOfPoolMemory)
	}
	b.nextSet++
	set := b.nextSet
	p.sets = append(p.sets, set)
	b.sets[set] = &descriptorSet{pool: pool}
	b.stats.DescriptorSetsAllocated++
	return set, nil
}

func (b *Backend) WriteDescriptorSet(set metadata.DescriptorSetHandle, bindings []metadata.Binding) error {
	for _, binding := range bindings {
		switch binding.Type {
		case metadata.DescriptorTypeStorageImage:
			if _, err := b.image(binding.Image); err != nil {
				return err
			}
		default:
			if _, err := b.buffer(binding.Buffer); err != nil {
				return err
			}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[set]
	if !ok {
		return fmt.Errorf("descriptor set %d: %w", set, core.ErrInvalidHandle)
	}
	s.bindings = append(s.bindings[:0], bindings...)
	return nil
}

func (b *Backend) ResetDescriptorPool(pool metadata.DescriptorPoolHandle) error {
	p, ok := b.descriptorPools.Get(uint32(pool))
	if !ok {
		return fmt.Errorf("descriptor pool %d: %w", pool, core.ErrInvalidHandle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range p.sets {
		delete(b.sets, set)
	}
	p.sets = p.sets[:0]
	b.stats.DescriptorPoolResets++
	return nil
}

func (b *Backend) DestroyDescriptorPool(pool metadata.DescriptorPoolHandle) {
	p, err := b.descriptorPools.Release(uint32(pool))
	if err != nil {
		core.LogWarn("destroy descriptor pool: %s", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range p.sets {
		delete(b.sets, set)
	}
}

// DescriptorSet returns the bindings last written to set.
func (b *Backend) DescriptorSet(set metadata.DescriptorSetHandle) ([]metadata.Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[set]
	if !ok {
		return nil, false
	}
	return s.bindings, true
}
